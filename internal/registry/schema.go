package registry

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

//go:embed schema/registry.schema.json
var registrySchema []byte

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(registrySchema)
	if err != nil {
		return nil, fmt.Errorf("compile registry schema: %w", err)
	}
	return schema, nil
})

// ValidateDocument checks raw registry JSON against the embedded schema.
// Unknown enum values (lock types, access modes, request statuses) and
// wrongly typed fields are reported here rather than surfacing later as
// string-comparison misses.
func ValidateDocument(raw []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}

	result := schema.ValidateJSON(raw)
	if result.IsValid() {
		return nil
	}

	return fmt.Errorf("schema validation failed: %v", result.Errors)
}
