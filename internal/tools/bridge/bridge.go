// Package bridge adapts the name-dispatched tools.Registry (patchtool,
// multitool) into agentrt.ToolExecutor entries so they can be offered
// through agentrt.Registry.Others and driven by the tool-use loop.
package bridge

import (
	"context"

	"github.com/quiet-coder-io/domainos/internal/agentrt"
	"github.com/quiet-coder-io/domainos/internal/tools"
)

// Executors returns one agentrt.ToolExecutor per schema reg currently
// exposes, each dispatching back into reg by name.
func Executors(reg tools.Registry) map[string]agentrt.ToolExecutor {
	out := make(map[string]agentrt.ToolExecutor)
	for _, schema := range reg.Schemas() {
		name := schema.Name
		out[name] = agentrt.ToolExecutorFunc(func(ctx context.Context, call agentrt.ToolCall) (string, error) {
			payload, err := reg.Dispatch(ctx, name, call.Args)
			if err != nil {
				return "", err
			}
			return string(payload), nil
		})
	}
	return out
}

// Schemas converts reg's tool schemas into the agentrt.ToolSchema shape the
// tool-use loop advertises to the provider.
func Schemas(reg tools.Registry) []agentrt.ToolSchema {
	schemas := reg.Schemas()
	out := make([]agentrt.ToolSchema, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, agentrt.ToolSchema{Name: s.Name, Description: s.Description, Parameters: s.Parameters})
	}
	return out
}
