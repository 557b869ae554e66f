package main

import (
	"fmt"

	"github.com/agentrt/goagent/internal/config"
	"github.com/agentrt/goagent/pkg/permission"
)

// PermissionCmd groups the permission-overrides-file subcommands
// (spec.md §6.3's sibling permissions file: "tool_name -> PermissionLevel").
type PermissionCmd struct {
	File string `short:"f" help:"Path to the permissions YAML file." default:"permissions.yaml"`

	Get GetPermissionCmd `cmd:"" help:"Show a tool's stored permission level."`
	Set SetPermissionCmd `cmd:"" help:"Set a tool's permission level."`
}

type GetPermissionCmd struct {
	Tool string `arg:"" help:"Fully-qualified tool name."`
}

func (c *GetPermissionCmd) Run(parent *PermissionCmd) error {
	f, err := config.LoadPermissionsFile(parent.File)
	if err != nil {
		return err
	}
	level, ok := f.Get(c.Tool)
	if !ok {
		fmt.Printf("%s: no override (falls back to the active Mode)\n", c.Tool)
		return nil
	}
	fmt.Printf("%s: %s\n", c.Tool, level)
	return nil
}

type SetPermissionCmd struct {
	Tool  string `arg:"" help:"Fully-qualified tool name."`
	Level string `arg:"" help:"always_allow, ask_before, or never_allow." enum:"always_allow,ask_before,never_allow"`
}

func (c *SetPermissionCmd) Run(parent *PermissionCmd) error {
	f, err := config.LoadPermissionsFile(parent.File)
	if err != nil {
		return err
	}
	if err := f.Set(c.Tool, permission.Level(c.Level)); err != nil {
		return err
	}
	fmt.Printf("%s: set to %s\n", c.Tool, c.Level)
	return nil
}
