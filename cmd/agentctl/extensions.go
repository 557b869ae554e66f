package main

import (
	"fmt"

	"github.com/agentrt/goagent/internal/config"
	"github.com/agentrt/goagent/pkg/extension"
)

// ExtensionsCmd groups the extensions file subcommands, all operating on
// the same --file path (spec.md §6.3 "Persisted extensions list").
type ExtensionsCmd struct {
	File string `short:"f" help:"Path to the extensions YAML file." default:"extensions.yaml"`

	List    ExtensionsListCmd    `cmd:"" help:"List configured extensions."`
	Enable  ExtensionsEnableCmd  `cmd:"" help:"Add or enable a builtin extension."`
	Disable ExtensionsDisableCmd `cmd:"" help:"Disable an extension without removing it."`
	Remove  ExtensionsRemoveCmd  `cmd:"" help:"Remove an extension entry entirely."`
}

type ExtensionsListCmd struct{}

func (c *ExtensionsListCmd) Run(parent *ExtensionsCmd) error {
	f, err := config.LoadExtensionsFile(parent.File)
	if err != nil {
		return err
	}
	if len(f.Entries) == 0 {
		fmt.Println("(no extensions configured)")
		return nil
	}
	for _, e := range f.Entries {
		status := "disabled"
		if e.Enabled {
			status = "enabled"
		}
		fmt.Printf("  %-20s %-10s kind=%s\n", e.Config.Name, status, e.Config.Kind)
	}
	return nil
}

type ExtensionsEnableCmd struct {
	Name string `arg:"" help:"Extension name."`
	Kind string `help:"Extension kind (builtin, stdio, sse, streamable_http, frontend, go_plugin)." default:"builtin"`
}

func (c *ExtensionsEnableCmd) Run(parent *ExtensionsCmd) error {
	f, err := config.LoadExtensionsFile(parent.File)
	if err != nil {
		return err
	}
	f.Upsert(true, extension.Config{Name: c.Name, Kind: extension.Kind(c.Kind)})
	if err := f.Save(parent.File); err != nil {
		return err
	}
	fmt.Printf("enabled %q\n", c.Name)
	return nil
}

type ExtensionsDisableCmd struct {
	Name string `arg:"" help:"Extension name."`
}

func (c *ExtensionsDisableCmd) Run(parent *ExtensionsCmd) error {
	f, err := config.LoadExtensionsFile(parent.File)
	if err != nil {
		return err
	}
	for i, e := range f.Entries {
		if e.Config.Name == c.Name {
			f.Entries[i].Enabled = false
			return saveAndReport(f, parent.File, fmt.Sprintf("disabled %q", c.Name))
		}
	}
	return fmt.Errorf("extension %q not found", c.Name)
}

type ExtensionsRemoveCmd struct {
	Name string `arg:"" help:"Extension name."`
}

func (c *ExtensionsRemoveCmd) Run(parent *ExtensionsCmd) error {
	f, err := config.LoadExtensionsFile(parent.File)
	if err != nil {
		return err
	}
	if !f.Remove(c.Name) {
		return fmt.Errorf("extension %q not found", c.Name)
	}
	return saveAndReport(f, parent.File, fmt.Sprintf("removed %q", c.Name))
}

func saveAndReport(f *config.ExtensionsFile, path, message string) error {
	if err := f.Save(path); err != nil {
		return err
	}
	fmt.Println(message)
	return nil
}
