package extension

import (
	"context"
	"fmt"

	"github.com/agentrt/goagent/pkg/convo"
	"github.com/agentrt/goagent/pkg/dispatch"
)

// Build constructs an Extension from its Config, dispatching on Kind.
// KindBuiltin and KindFrontend have no wire form — callers register
// those directly via Manager.Register / the dispatcher's FrontendTools
// set, so Build rejects them.
func Build(cfg Config) (Extension, error) {
	switch cfg.Kind {
	case KindStdio:
		return NewStdio(cfg), nil
	case KindSSE, KindStreamableHTTP:
		return NewHTTP(cfg), nil
	case KindGoPlugin:
		return NewGoPlugin(cfg), nil
	default:
		return nil, fmt.Errorf("extension %q: kind %q has no wire transport", cfg.Name, cfg.Kind)
	}
}

// LifecycleSink adapts Manager to dispatch.Sink for
// platform_manage_extensions: {"action": "add", "name": ..., "kind": ...,
// "command"/"url"/"args"/"env": ...} for add (the config keys sit at the
// top level of the arguments), {"action": "remove", "name": ...} for
// remove.
type LifecycleSink struct{ Manager *Manager }

func (s LifecycleSink) Dispatch(ctx context.Context, requestID string, call *convo.ToolCall, cancel <-chan struct{}) (dispatch.Handle, error) {
	action, _ := call.Arguments["action"].(string)

	switch action {
	case "add":
		cfg, err := configFromArgs(call.Arguments)
		if err != nil {
			return syncHandle(convo.ErrResult("invalid_config", err.Error())), nil
		}
		ext, err := Build(cfg)
		if err != nil {
			return syncHandle(convo.ErrResult("unsupported_extension", err.Error())), nil
		}
		s.Manager.Register(ext)
		return syncHandle(convo.OkResult(convo.ResultItem{Type: convo.ResultText, Text: fmt.Sprintf("registered extension %q", cfg.Name)})), nil

	case "remove":
		name, _ := call.Arguments["name"].(string)
		if err := s.Manager.Unregister(ctx, name); err != nil {
			return syncHandle(convo.ErrResult("unregister_failed", err.Error())), nil
		}
		return syncHandle(convo.OkResult(convo.ResultItem{Type: convo.ResultText, Text: fmt.Sprintf("removed extension %q", name)})), nil

	default:
		return syncHandle(convo.ErrResult("invalid_action", fmt.Sprintf("unknown action %q", action))), nil
	}
}

func configFromArgs(args map[string]any) (Config, error) {
	name, _ := args["name"].(string)
	kind, _ := args["kind"].(string)
	if name == "" || kind == "" {
		return Config{}, fmt.Errorf("extension config requires both name and kind")
	}

	cfg := Config{Name: name, Kind: Kind(kind)}
	cfg.Command, _ = args["command"].(string)
	cfg.URL, _ = args["url"].(string)

	if rawArgs, ok := args["args"].([]any); ok {
		for _, a := range rawArgs {
			if s, ok := a.(string); ok {
				cfg.Args = append(cfg.Args, s)
			}
		}
	}
	if env, ok := args["env"].(map[string]any); ok {
		cfg.Env = make(map[string]string, len(env))
		for k, v := range env {
			cfg.Env[k] = fmt.Sprintf("%v", v)
		}
	}
	return cfg, nil
}
