package extension

import (
	"context"
	"encoding/gob"
	"fmt"
	"net/rpc"
	"os/exec"

	goplugin "github.com/hashicorp/go-plugin"

	"github.com/agentrt/goagent/pkg/convo"
	"github.com/agentrt/goagent/pkg/dispatch"
)

// handshakeConfig matches across host and plugin processes, mirroring
// the teacher's plugins/grpc handshake pattern but for a net/rpc plugin
// instead of gRPC — this avoids needing protoc-generated stubs for a
// wire format SPEC_FULL.md doesn't otherwise require.
var handshakeConfig = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "GOAGENT_EXTENSION_PLUGIN",
	MagicCookieValue: "goagent",
}

// toolRPC is the net/rpc interface a plugin binary must implement.
type toolRPC interface {
	Tools(args any, resp *[]ToolSpec) error
	CallTool(args toolCallArgs, resp *toolCallResult) error
}

type toolCallArgs struct {
	Name string
	Args map[string]any
}

type toolCallResult struct {
	Result *convo.ToolResult
}

func init() {
	gob.Register(map[string]any{})
}

// toolPlugin is the go-plugin Plugin implementation for the tool RPC
// interface; only the client side is used here since goagent is always
// the host, never a plugin.
type toolPlugin struct{}

func (toolPlugin) Server(*goplugin.MuxBroker) (any, error) {
	return nil, fmt.Errorf("goagent only hosts extension plugins, it does not serve as one")
}

func (toolPlugin) Client(b *goplugin.MuxBroker, c *rpc.Client) (any, error) {
	return &toolRPCClient{client: c}, nil
}

type toolRPCClient struct{ client *rpc.Client }

func (c *toolRPCClient) Tools(args any, resp *[]ToolSpec) error {
	return c.client.Call("Plugin.Tools", args, resp)
}

func (c *toolRPCClient) CallTool(args toolCallArgs, resp *toolCallResult) error {
	return c.client.Call("Plugin.CallTool", args, resp)
}

// GoPluginExtension hosts an extension implemented as a separate binary
// speaking hashicorp/go-plugin's net/rpc protocol (spec.md §4.2's
// go_plugin transport variant). Grounded on the teacher's
// plugins/grpc.GRPCLoader, adapted from gRPC to net/rpc dispense.
type GoPluginExtension struct {
	cfg    Config
	client *goplugin.Client
	rpcC   toolRPC
}

// NewGoPlugin creates a lazily-started go-plugin extension.
func NewGoPlugin(cfg Config) *GoPluginExtension {
	return &GoPluginExtension{cfg: cfg}
}

func (g *GoPluginExtension) Name() string { return g.cfg.Name }

func (g *GoPluginExtension) ensureStarted() error {
	if g.rpcC != nil {
		return nil
	}

	g.client = goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: handshakeConfig,
		Plugins:         map[string]goplugin.Plugin{"tool": &toolPlugin{}},
		Cmd:             exec.Command(g.cfg.Command, g.cfg.Args...),
		AllowedProtocols: []goplugin.Protocol{
			goplugin.ProtocolNetRPC,
		},
	})

	rpcClient, err := g.client.Client()
	if err != nil {
		g.client.Kill()
		return fmt.Errorf("connect to plugin: %w", err)
	}

	raw, err := rpcClient.Dispense("tool")
	if err != nil {
		g.client.Kill()
		return fmt.Errorf("dispense tool plugin: %w", err)
	}

	rpcC, ok := raw.(toolRPC)
	if !ok {
		g.client.Kill()
		return fmt.Errorf("plugin %q does not implement the tool RPC interface", g.cfg.Name)
	}
	g.rpcC = rpcC
	return nil
}

func (g *GoPluginExtension) Tools(ctx context.Context) ([]ToolSpec, error) {
	if err := g.ensureStarted(); err != nil {
		return nil, err
	}
	var tools []ToolSpec
	if err := g.rpcC.Tools(nil, &tools); err != nil {
		return nil, fmt.Errorf("plugin tools: %w", err)
	}
	return tools, nil
}

func (g *GoPluginExtension) CallTool(ctx context.Context, name string, args map[string]any) (*convo.ToolResult, []dispatch.Notification, error) {
	if err := g.ensureStarted(); err != nil {
		return nil, nil, err
	}
	var resp toolCallResult
	if err := g.rpcC.CallTool(toolCallArgs{Name: name, Args: args}, &resp); err != nil {
		return nil, nil, fmt.Errorf("plugin call tool %q: %w", name, err)
	}
	return resp.Result, nil, nil
}

func (g *GoPluginExtension) ListResources(ctx context.Context) ([]Resource, error) { return nil, nil }

func (g *GoPluginExtension) ReadResource(ctx context.Context, uri string) (*convo.ToolResult, error) {
	return nil, fmt.Errorf("go-plugin extension %q exposes no resources", g.cfg.Name)
}

func (g *GoPluginExtension) ListPrompts(ctx context.Context) ([]Prompt, error) { return nil, nil }

func (g *GoPluginExtension) GetPrompt(ctx context.Context, name string, args map[string]any) ([]PromptMessage, error) {
	return nil, fmt.Errorf("go-plugin extension %q exposes no prompts", g.cfg.Name)
}

func (g *GoPluginExtension) Close() error {
	if g.client != nil {
		g.client.Kill()
	}
	return nil
}

var _ Extension = (*GoPluginExtension)(nil)
