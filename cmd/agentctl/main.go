// Command agentctl is a small operator CLI for the agent runtime: it
// validates a settings file, lists and edits
// extensions, and serves the Prometheus metrics endpoint. It does not
// drive a turn loop itself — wiring a concrete provider.Provider and
// running Engine.Reply is left to the embedding host (spec.md's
// Non-goals: "not a chat UI, not a provider SDK").
package main

import (
	"fmt"
	"net/http"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/agentrt/goagent/internal/config"
	"github.com/agentrt/goagent/internal/logging"
	"github.com/agentrt/goagent/pkg/metrics"
)

// CLI is the top-level agentctl command set.
type CLI struct {
	Version    VersionCmd    `cmd:"" help:"Show version information."`
	Validate   ValidateCmd   `cmd:"" help:"Validate a settings file."`
	Extensions ExtensionsCmd `cmd:"" help:"List, enable, or disable extensions."`
	Permission PermissionCmd `cmd:"" name:"permission" help:"Get or set a tool's permission level."`
	Metrics    MetricsCmd    `cmd:"" help:"Serve the Prometheus metrics endpoint."`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd prints the module's build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		version = info.Main.Version
	}
	fmt.Printf("agentctl %s\n", version)
	return nil
}

// ValidateCmd loads and validates a settings.yaml file.
type ValidateCmd struct {
	Path string `arg:"" help:"Path to the settings YAML file."`
}

func (c *ValidateCmd) Run() error {
	settings, err := config.LoadSettings(c.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: invalid: %v\n", c.Path, err)
		return err
	}
	fmt.Printf("%s: valid (provider=%s model=%s mode=%s)\n", c.Path, settings.Provider, settings.Model, settings.Mode)
	return nil
}

// MetricsCmd serves the Prometheus /metrics endpoint for smoke-testing
// the counters a live Engine would otherwise feed through pkg/metrics.Recorder.
type MetricsCmd struct {
	Addr string `help:"Address to listen on." default:":9090"`
}

func (c *MetricsCmd) Run() error {
	collector := metrics.New(metrics.Config{Namespace: "goagent"})
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	fmt.Printf("serving metrics on http://%s/metrics\n", c.Addr)
	return http.ListenAndServe(c.Addr, mux)
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("agentctl"),
		kong.Description("Operator CLI for the agent runtime."),
		kong.UsageOnError(),
	)

	logging.Init(logging.ParseLevel(cli.LogLevel), os.Stderr, logging.Format(cli.LogFormat))

	ctx.FatalIfErrorf(ctx.Run(&cli))
}
