package utils

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// SchemaRegistry validates raw JSON payloads against named, compiled schemas
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]*gojsonschema.Schema
}

// NewSchemaRegistry creates an empty SchemaRegistry
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Register compiles schema and stores it under name
func (r *SchemaRegistry) Register(name, schema string) error {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	r.mu.Lock()
	r.schemas[name] = compiled
	r.mu.Unlock()
	return nil
}

// Validate checks payload against the schema registered as name.
// Violations are reported as ErrValidation.
func (r *SchemaRegistry) Validate(name string, payload []byte) error {
	r.mu.RLock()
	schema, ok := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("schema %s not found", name)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("%w: malformed payload: %v", ErrValidation, err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			messages = append(messages, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
		}
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(messages, "; "))
	}

	return nil
}

// JSONSchemaBuilder builds draft-07 object schemas
type JSONSchemaBuilder struct {
	schema     map[string]interface{}
	properties map[string]interface{}
	required   []string
}

// NewJSONSchemaBuilder creates a builder for an object schema.
// Unknown properties are allowed unless Strict is called.
func NewJSONSchemaBuilder(title string) *JSONSchemaBuilder {
	properties := map[string]interface{}{}
	return &JSONSchemaBuilder{
		schema: map[string]interface{}{
			"$schema":    "http://json-schema.org/draft-07/schema#",
			"title":      title,
			"type":       "object",
			"properties": properties,
		},
		properties: properties,
	}
}

func (b *JSONSchemaBuilder) add(name string, property map[string]interface{}, required bool) *JSONSchemaBuilder {
	b.properties[name] = property
	if required {
		b.required = append(b.required, name)
	}
	return b
}

// AddStringProperty adds a string property, optionally non-empty
func (b *JSONSchemaBuilder) AddStringProperty(name string, required bool) *JSONSchemaBuilder {
	property := map[string]interface{}{"type": "string"}
	if required {
		property["minLength"] = 1
	}
	return b.add(name, property, required)
}

// AddNumberProperty adds a number property
func (b *JSONSchemaBuilder) AddNumberProperty(name string, required bool) *JSONSchemaBuilder {
	return b.add(name, map[string]interface{}{"type": "number"}, required)
}

// AddDateTimeProperty adds an RFC 3339 timestamp property
func (b *JSONSchemaBuilder) AddDateTimeProperty(name string, required bool) *JSONSchemaBuilder {
	return b.add(name, map[string]interface{}{"type": "string", "format": "date-time"}, required)
}

// AddEnumProperty adds a string property restricted to values
func (b *JSONSchemaBuilder) AddEnumProperty(name string, values []string, required bool) *JSONSchemaBuilder {
	return b.add(name, map[string]interface{}{"type": "string", "enum": values}, required)
}

// Build returns the JSON schema as a string
func (b *JSONSchemaBuilder) Build() (string, error) {
	if len(b.required) > 0 {
		b.schema["required"] = b.required
	}

	jsonBytes, err := json.MarshalIndent(b.schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema: %w", err)
	}

	return string(jsonBytes), nil
}
