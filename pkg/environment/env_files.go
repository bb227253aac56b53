package environment

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
)

// EnvFileProvider serves variables read from dotenv files. Later files
// override earlier ones.
type EnvFileProvider struct {
	values map[string]string
}

func NewEnvFileProvider(paths ...string) (*EnvFileProvider, error) {
	values := map[string]string{}
	for _, path := range paths {
		kv, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("reading env file %s: %w", path, err)
		}
		for k, v := range kv {
			values[k] = v
		}
	}
	return &EnvFileProvider{values: values}, nil
}

func (p *EnvFileProvider) Get(_ context.Context, name string) (string, bool) {
	v, ok := p.values[name]
	return v, ok
}

// NewDefaultProvider looks variables up in the process environment first,
// then in the given dotenv files. Missing files are skipped.
func NewDefaultProvider(envFiles ...string) (Provider, error) {
	var existing []string
	for _, path := range envFiles {
		if _, err := godotenv.Read(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Debug("Env file not found, skipping", "path", path)
				continue
			}
			return nil, fmt.Errorf("reading env file %s: %w", path, err)
		}
		existing = append(existing, path)
	}

	files, err := NewEnvFileProvider(existing...)
	if err != nil {
		return nil, err
	}
	return Chain{NewOsEnvProvider(), files}, nil
}
