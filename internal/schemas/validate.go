// Package schemas provides JSON Schema validation for activity payloads and input files.
package schemas

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/types"
	rootschemas "github.com/Open-Earth-Foundation/CityCatalyst-sub010/schemas"
	"github.com/xeipuuv/gojsonschema"
)

// Schema names for input files
const (
	InventoryFileSchema   = "inventory_file.schema.json"
	ActionCatalogueSchema = "action_catalogue.schema.json"
	schemaSuffix          = ".schema.json"
)

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

// SchemaLoadError represents errors loading or parsing the schema itself
type SchemaLoadError struct {
	Path    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Path, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:\n")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

var (
	compiledMu sync.Mutex
	compiled   = map[string]*gojsonschema.Schema{}
)

// load compiles an embedded schema once and caches it.
func load(name string) (*gojsonschema.Schema, error) {
	compiledMu.Lock()
	defer compiledMu.Unlock()

	if s, ok := compiled[name]; ok {
		return s, nil
	}
	data, err := rootschemas.FS.ReadFile(name)
	if err != nil {
		return nil, &SchemaLoadError{Path: name, Message: "schema not embedded", Cause: err}
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, &SchemaLoadError{Path: name, Message: "schema failed to compile", Cause: err}
	}
	compiled[name] = s
	return s, nil
}

// MethodologySchemaName returns the embedded schema file for a methodology,
// e.g. fuel-combustion -> fuel_combustion.schema.json.
func MethodologySchemaName(m types.Methodology) string {
	return strings.ReplaceAll(string(m), "-", "_") + schemaSuffix
}

// ValidatePayload validates an activity input payload against its methodology schema.
func ValidatePayload(m types.Methodology, payload types.InputPayload) error {
	if payload == nil {
		payload = types.InputPayload{}
	}
	return validateWith(MethodologySchemaName(m), gojsonschema.NewGoLoader(payload))
}

// ValidateDocument validates raw JSON content against a named embedded schema.
func ValidateDocument(schemaName string, data []byte) error {
	return validateWith(schemaName, gojsonschema.NewBytesLoader(data))
}

// ValidateJSONString validates JSON string content against schema string content
func ValidateJSONString(schemaContent, jsonContent string) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaContent))
	if err != nil {
		return &SchemaLoadError{
			Path:    "(string schema)",
			Message: "schema validation failed during load",
			Cause:   err,
		}
	}
	return validateDocument(schema, gojsonschema.NewStringLoader(jsonContent))
}

func validateWith(schemaName string, document gojsonschema.JSONLoader) error {
	schema, err := load(schemaName)
	if err != nil {
		return err
	}
	return validateDocument(schema, document)
}

func validateDocument(schema *gojsonschema.Schema, document gojsonschema.JSONLoader) error {
	result, err := schema.Validate(document)
	if err != nil {
		return &ValidationError{Errors: []FieldError{{Field: "(root)", Message: err.Error()}}}
	}
	if result.Valid() {
		return nil
	}

	// Build structured error
	validationErr := &ValidationError{
		Errors: make([]FieldError, 0, len(result.Errors())),
	}

	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}

	return validationErr
}
