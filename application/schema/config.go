// Package schema publishes the JSON schema of the host configuration file.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/reglet-dev/dylib-host/domain/entities"
)

// configReflector describes Config the way the YAML parser reads it: keys come
// from the yaml tags, required fields only from jsonschema tags, and unknown
// keys are rejected.
func configReflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		FieldNameTag:               "yaml",
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
		AllowAdditionalProperties:  false,
	}
}

// ConfigSchema returns the indented JSON schema of the host configuration file.
func ConfigSchema() ([]byte, error) {
	s := configReflector().Reflect(&entities.Config{})
	s.Title = "dylib-host configuration"
	s.Description = "Library to load and how to exchange with it."

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config schema: %w", err)
	}
	return data, nil
}
