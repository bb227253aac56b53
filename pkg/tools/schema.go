package tools

import (
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// MustSchemaFor infers the input schema of a tool from its arguments struct.
// It panics on types jsonschema cannot describe, which is a programming error.
func MustSchemaFor[T any]() any {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		panic(fmt.Sprintf("inferring schema: %v", err))
	}

	m, err := SchemaToMap(schema)
	if err != nil {
		panic(fmt.Sprintf("converting schema: %v", err))
	}
	return m
}

// SchemaToMap normalizes any schema value into a JSON object map that
// providers accept: it always has a type and a properties object.
func SchemaToMap(params any) (map[string]any, error) {
	m := map[string]any{}
	if params != nil {
		if err := JSONRoundtrip(params, &m); err != nil {
			return nil, err
		}
	}

	if _, ok := m["type"]; !ok {
		m["type"] = "object"
	}
	if _, ok := m["properties"]; !ok {
		m["properties"] = map[string]any{}
	}

	return m, nil
}

// ValidateArguments checks complete tool call arguments against a schema.
func ValidateArguments(schema any, arguments string) error {
	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}

	m, err := SchemaToMap(schema)
	if err != nil {
		return fmt.Errorf("converting schema: %w", err)
	}
	// Models routinely add stray fields; only declared ones are checked.
	delete(m, "additionalProperties")

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(m), gojsonschema.NewStringLoader(arguments))
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var problems []string
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return fmt.Errorf("invalid arguments: %s", strings.Join(problems, "; "))
}
