// Package schema validates session facets against the embedded JSON Schema
// and adds the advisory checks the schema language cannot express.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/madness-retro/madness/embedded"
)

var (
	optionalCollabKeys = []string{"automation_surrender", "anchoring_effect"}
	executionKeys      = []string{"param_fidelity", "spec_compliance", "first_round_accuracy", "rework_attribution"}
	warnWhenEmpty      = []string{"learning", "key_decision", "domain_knowledge_gained"}
)

// Result is the outcome of validating one facet document.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// ErrInvalidFacet matches every *ValidationError with errors.Is.
var ErrInvalidFacet = errors.New("invalid facet")

// ValidationError is returned by Validate when a facet is rejected.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidFacet, strings.Join(e.Errors, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidFacet
}

// Validator checks facet documents. The compiled schema is cached after first use.
type Validator struct {
	once   sync.Once
	schema *gojsonschema.Schema
	err    error
}

// NewValidator creates a validator for the embedded facet schema.
func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) compiled() (*gojsonschema.Schema, error) {
	v.once.Do(func() {
		v.schema, v.err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(embedded.FacetSchema))
	})
	return v.schema, v.err
}

// Check validates data and reports every error and warning found.
func (v *Validator) Check(data []byte) Result {
	res := Result{Errors: []string{}, Warnings: []string{}}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("invalid JSON: %v", err))
		return res
	}

	schema, err := v.compiled()
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("facet schema: %v", err))
		return res
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("validation execution failed: %v", err))
		return res
	}
	for _, desc := range result.Errors() {
		res.Errors = append(res.Errors, desc.String())
	}

	if obj, ok := doc.(map[string]any); ok {
		res.Warnings = advisories(obj)
	}
	res.Valid = len(res.Errors) == 0
	return res
}

// Validate returns a *ValidationError when data is not a valid facet.
func (v *Validator) Validate(data []byte) error {
	res := v.Check(data)
	if !res.Valid {
		return &ValidationError{Errors: res.Errors}
	}
	return nil
}

func advisories(obj map[string]any) []string {
	warnings := []string{}

	if collab, ok := obj["ai_collab"].(map[string]any); ok {
		for _, key := range optionalCollabKeys {
			if _, present := collab[key]; !present {
				warnings = append(warnings, fmt.Sprintf("ai_collab missing optional key: %s", key))
			}
		}
	}

	if _, ok := obj["extraction_confidence"]; !ok {
		warnings = append(warnings, "missing optional field: extraction_confidence")
	}

	switch exec := obj["ai_execution"].(type) {
	case nil:
		warnings = append(warnings, "missing optional field: ai_execution")
	case map[string]any:
		for _, key := range executionKeys {
			if _, present := exec[key]; !present {
				warnings = append(warnings, fmt.Sprintf("ai_execution missing key: %s", key))
			}
		}
	}

	for _, key := range warnWhenEmpty {
		if s, ok := obj[key].(string); ok && s == "" {
			warnings = append(warnings, fmt.Sprintf("'%s' is empty", key))
		}
	}
	return warnings
}
