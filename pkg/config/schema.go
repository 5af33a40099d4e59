package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

// SchemaIssue is one schema violation.
type SchemaIssue struct {
	// Field is the dotted path of the offending value ("(root)" for the document).
	Field       string
	Description string
}

func (i SchemaIssue) String() string {
	return i.Field + ": " + i.Description
}

// Schema returns the embedded JSON Schema of the configuration file.
func Schema() []byte {
	return append([]byte(nil), schemaJSON...)
}

// ValidateFile checks a YAML configuration file against the schema.
// The error is non-nil only when the file cannot be read or parsed.
func ValidateFile(path string) ([]SchemaIssue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return ValidateDocument(data)
}

// ValidateDocument checks YAML (or JSON) configuration bytes against the schema.
func ValidateDocument(data []byte) ([]SchemaIssue, error) {
	var doc any

	err := yaml.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// An empty file is an empty mapping.
	if doc == nil {
		doc = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaJSON), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}

	issues := make([]SchemaIssue, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		issues = append(issues, SchemaIssue{Field: verr.Field(), Description: verr.Description()})
	}

	return issues, nil
}
