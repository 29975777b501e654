package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"cvscanner-backend/resume/model"
)

var (
	formattedSchemaOnce sync.Once
	formattedSchema     *jsonschema.Schema
	formattedSchemaErr  error
)

func compiledFormattedSchema() (*jsonschema.Schema, error) {
	formattedSchemaOnce.Do(func() {
		b, err := json.Marshal(model.Schema())
		if err != nil {
			formattedSchemaErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("formatted.json", bytes.NewReader(b)); err != nil {
			formattedSchemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		formattedSchema, formattedSchemaErr = compiler.Compile("formatted.json")
	})
	return formattedSchema, formattedSchemaErr
}

// validateFormatted checks v (decoded JSON shapes) against the Formatted schema.
func validateFormatted(v any) error {
	schema, err := compiledFormattedSchema()
	if err != nil {
		return parseError("", "compile schema", err)
	}
	if err := schema.Validate(v); err != nil {
		return parseError(failingField(err), "model output does not match the schema", err)
	}
	return nil
}

// failingField converts the deepest JSON pointer in a validation error into a
// dotted field path such as experience.0.company.
func failingField(err error) string {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return ""
	}
	for len(verr.Causes) > 0 {
		verr = verr.Causes[0]
	}
	loc := strings.TrimPrefix(verr.InstanceLocation, "/")
	return strings.ReplaceAll(loc, "/", ".")
}
