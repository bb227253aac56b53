package environment

import "context"

// Chain resolves a variable from the first provider holding a non-empty
// value for it.
type Chain []Provider

func (c Chain) Get(ctx context.Context, name string) (string, bool) {
	for _, p := range c {
		if v, ok := p.Get(ctx, name); ok && v != "" {
			return v, true
		}
	}
	return "", false
}
