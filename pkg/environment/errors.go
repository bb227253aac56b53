package environment

import (
	"context"
	"strings"
)

type RequiredEnvError struct {
	Missing []string
}

var _ error = &RequiredEnvError{}

func (e *RequiredEnvError) Error() string {
	return "missing required environment variables: " + strings.Join(e.Missing, ", ")
}

// Require returns the values of all names, or a *RequiredEnvError listing
// the ones that are unset or empty.
func Require(ctx context.Context, env Provider, names ...string) (map[string]string, error) {
	values := make(map[string]string, len(names))
	var missing []string
	for _, name := range names {
		v, ok := env.Get(ctx, name)
		if !ok || v == "" {
			missing = append(missing, name)
			continue
		}
		values[name] = v
	}
	if len(missing) > 0 {
		return nil, &RequiredEnvError{Missing: missing}
	}
	return values, nil
}
