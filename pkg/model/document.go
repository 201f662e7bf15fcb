package model

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Document is the top-level YAML form of a locally authored test plan.
// Plans resolved from the issue tracker never pass through a Document; this
// is the on-disk interchange for `veriplan run plan.yaml` and for replay
// fixtures.
type Document struct {
	APIVersion string    `yaml:"apiVersion"         json:"apiVersion" jsonschema:"required,enum=plan/v1"`
	Case       CaseMeta  `yaml:"case"               json:"case"       jsonschema:"required"`
	Defaults   *Defaults `yaml:"defaults,omitempty" json:"defaults,omitempty"`
	Steps      []Step    `yaml:"steps"              json:"steps"      jsonschema:"required,minItems=1"`
}

// CaseMeta identifies the external test case a plan document belongs to.
type CaseMeta struct {
	ID      string `yaml:"id"                json:"id" jsonschema:"required"`
	Title   string `yaml:"title,omitempty"   json:"title,omitempty"`
	Project string `yaml:"project,omitempty" json:"project,omitempty"`
}

// Defaults holds settings applied to every step unless overridden.
type Defaults struct {
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"pattern=^[0-9]+(ms|s|m|h)$"`
}

// LoadFile reads and strictly decodes a plan document from disk.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plan: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load strictly decodes a plan document; unknown fields are rejected.
func Load(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return &doc, nil
}

// Plan converts the document into an executable Plan. Step indices are
// assigned from document order; any indices present in the file are replaced
// so the uniqueness invariant cannot be violated by hand-edited YAML.
func (d *Document) Plan() (*Plan, error) {
	p := &Plan{TestCaseID: d.Case.ID, Steps: make([]Step, 0, len(d.Steps))}
	for i, s := range d.Steps {
		s.Index = i
		if s.Target == "" {
			s.Target = TargetUnknown
		}
		if s.Timeout == "" && d.Defaults != nil {
			s.Timeout = d.Defaults.Timeout
		}
		p.Steps = append(p.Steps, s)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
