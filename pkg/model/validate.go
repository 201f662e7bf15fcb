package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// DocumentError is a single validation finding with location context.
type DocumentError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// ValidateFile runs the full 3-phase validation pipeline on a plan document.
// Phase 1: Structural (strict YAML decode)
// Phase 2: Semantic (JSON Schema validation)
// Phase 3: Domain (custom Go rules)
func ValidateFile(path string) (*Document, []*DocumentError) {
	var all []*DocumentError

	doc, err := LoadFile(path)
	if err != nil {
		all = append(all, &DocumentError{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		})
		return nil, all
	}

	all = append(all, validateSemantic(doc)...)
	all = append(all, ValidateDomain(doc)...)

	if len(all) > 0 {
		return doc, all
	}
	return doc, nil
}

// validateSemantic validates the document against the generated JSON Schema.
func validateSemantic(doc *Document) []*DocumentError {
	data, err := json.Marshal(doc)
	if err != nil {
		return []*DocumentError{{Phase: "semantic", Message: fmt.Sprintf("marshal for schema validation: %v", err), Severity: "error"}}
	}

	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return []*DocumentError{{Phase: "semantic", Message: fmt.Sprintf("generate schema: %v", err), Severity: "error"}}
	}

	var schemaDoc interface{}
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return []*DocumentError{{Phase: "semantic", Message: fmt.Sprintf("unmarshal schema: %v", err), Severity: "error"}}
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("plan-v1.json", schemaDoc); err != nil {
		return []*DocumentError{{Phase: "semantic", Message: fmt.Sprintf("add schema resource: %v", err), Severity: "error"}}
	}
	sch, err := c.Compile("plan-v1.json")
	if err != nil {
		return []*DocumentError{{Phase: "semantic", Message: fmt.Sprintf("compile schema: %v", err), Severity: "error"}}
	}

	var inst interface{}
	if err := json.Unmarshal(data, &inst); err != nil {
		return []*DocumentError{{Phase: "semantic", Message: fmt.Sprintf("unmarshal document: %v", err), Severity: "error"}}
	}

	if err := sch.Validate(inst); err != nil {
		var errs []*DocumentError
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flattenValidationErrors(ve) {
				errs = append(errs, &DocumentError{
					Phase:    "semantic",
					Path:     strings.Join(cause.InstanceLocation, "/"),
					Message:  fmt.Sprintf("%v", cause.ErrorKind),
					Severity: "error",
				})
			}
		} else {
			errs = append(errs, &DocumentError{Phase: "semantic", Message: err.Error(), Severity: "error"})
		}
		return errs
	}
	return nil
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// ValidateDomain performs Phase 3 domain-level validation.
func ValidateDomain(doc *Document) []*DocumentError {
	var errs []*DocumentError

	if doc.APIVersion != "plan/v1" {
		errs = append(errs, &DocumentError{
			Phase:    "domain",
			Path:     "apiVersion",
			Message:  fmt.Sprintf("unrecognized apiVersion %q, expected %q", doc.APIVersion, "plan/v1"),
			Severity: "error",
		})
	}

	if doc.Case.ID == "" {
		errs = append(errs, &DocumentError{
			Phase:    "domain",
			Path:     "case.id",
			Message:  "case id must not be empty",
			Severity: "error",
		})
	}

	if len(doc.Steps) == 0 {
		errs = append(errs, &DocumentError{
			Phase:    "domain",
			Path:     "steps",
			Message:  "plan must contain at least one step",
			Severity: "error",
		})
	}

	for i, s := range doc.Steps {
		if s.Description == "" {
			errs = append(errs, &DocumentError{
				Phase:    "domain",
				Path:     fmt.Sprintf("steps[%d].description", i),
				Message:  "description must not be empty",
				Severity: "error",
			})
		}
		switch s.Target {
		case "", TargetWeb, TargetEmbedded, TargetUnknown:
		default:
			errs = append(errs, &DocumentError{
				Phase:    "domain",
				Path:     fmt.Sprintf("steps[%d].target", i),
				Message:  fmt.Sprintf("unrecognized target %q", s.Target),
				Severity: "error",
			})
		}
		// Steps without a resolvable target will fail routing at run time;
		// authoring one deliberately is almost always a mistake.
		if s.Target == "" || s.Target == TargetUnknown {
			errs = append(errs, &DocumentError{
				Phase:    "domain",
				Path:     fmt.Sprintf("steps[%d].target", i),
				Message:  "step has no execution target and will abort the run when routed",
				Severity: "warning",
			})
		}
		if s.Timeout != "" {
			if _, err := time.ParseDuration(s.Timeout); err != nil {
				errs = append(errs, &DocumentError{
					Phase:    "domain",
					Path:     fmt.Sprintf("steps[%d].timeout", i),
					Message:  err.Error(),
					Severity: "error",
				})
			}
		}
	}

	if doc.Defaults != nil && doc.Defaults.Timeout != "" {
		if _, err := time.ParseDuration(doc.Defaults.Timeout); err != nil {
			errs = append(errs, &DocumentError{
				Phase:    "domain",
				Path:     "defaults.timeout",
				Message:  err.Error(),
				Severity: "error",
			})
		}
	}

	return errs
}

// HasErrors reports whether any finding has severity "error".
func HasErrors(errs []*DocumentError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}
