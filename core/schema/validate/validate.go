// Package validate checks stored artifacts against their embedded JSON
// Schemas. A schema violation of a readable file is corruption, not
// absence: callers fold it into a Fail outcome.
package validate

import (
	"embed"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	compileOnce sync.Once
	compileErr  error
	compiled    map[string]*jsonschema.Schema
)

const (
	schemaManifest = "manifest"
	schemaRecord   = "record"
	schemaBundle   = "bundle"
)

func Manifest(data []byte) error {
	return validateAgainst(schemaManifest, data)
}

func Record(data []byte) error {
	return validateAgainst(schemaRecord, data)
}

func Bundle(data []byte) error {
	return validateAgainst(schemaBundle, data)
}

func validateAgainst(name string, data []byte) error {
	schemas, err := loadSchemas()
	if err != nil {
		return err
	}
	schema, ok := schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema: %s", name)
	}
	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("schema validation failed: %v", result.Errors)
}

func loadSchemas() (map[string]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		compiled = make(map[string]*jsonschema.Schema, 3)
		for _, name := range []string{schemaManifest, schemaRecord, schemaBundle} {
			raw, err := schemaFS.ReadFile("schemas/" + name + ".schema.json")
			if err != nil {
				compileErr = fmt.Errorf("read schema %s: %w", name, err)
				return
			}
			schema, err := compiler.Compile(raw)
			if err != nil {
				compileErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			compiled[name] = schema
		}
	})
	return compiled, compileErr
}
