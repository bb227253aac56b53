package tools

import (
	"fmt"
	"slices"
)

// Registry is the closed set of tools offered to the model during a turn.
// Tools keep their registration order.
type Registry struct {
	tools []Tool
}

func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{}
	for _, t := range tools {
		if t.Name == "" {
			return nil, fmt.Errorf("tool without a name")
		}
		if _, exists := r.Lookup(t.Name); exists {
			return nil, fmt.Errorf("tool %q registered twice", t.Name)
		}
		r.tools = append(r.tools, t)
	}
	return r, nil
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	i := slices.IndexFunc(r.tools, func(t Tool) bool { return t.Name == name })
	if i < 0 {
		return Tool{}, false
	}
	return r.tools[i], true
}

func (r *Registry) Tools() []Tool {
	return slices.Clone(r.tools)
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.tools))
	for i, t := range r.tools {
		names[i] = t.Name
	}
	return names
}
