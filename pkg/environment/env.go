// Package environment resolves secrets such as API keys from the process
// environment and dotenv files.
package environment

import (
	"context"
	"os"
)

// Provider looks up a variable. The boolean reports whether it was found,
// the value may still be empty.
type Provider interface {
	Get(ctx context.Context, name string) (string, bool)
}

type OsEnvProvider struct{}

func NewOsEnvProvider() *OsEnvProvider {
	return &OsEnvProvider{}
}

func (p *OsEnvProvider) Get(_ context.Context, name string) (string, bool) {
	return os.LookupEnv(name)
}
