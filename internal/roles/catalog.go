package roles

import (
	"bytes"
	_ "embed"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// RoleSpec is the role-specific part of an instruction.
type RoleSpec struct {
	Name    string   `yaml:"name"`
	Summary string   `yaml:"summary,omitempty"`
	Goal    string   `yaml:"goal,omitempty"`
	Steps   []string `yaml:"steps,omitempty"`
}

// Catalog is the prompt catalog: a shared protocol template, an instruction
// template and one RoleSpec per team role. Both templates are text/template
// sources with the sprig function map available.
type Catalog struct {
	Version     int        `yaml:"version"`
	Product     string     `yaml:"product,omitempty"`
	Protocol    string     `yaml:"protocol,omitempty"`
	Instruction string     `yaml:"instruction,omitempty"`
	Roles       []RoleSpec `yaml:"roles,omitempty"`
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() (Catalog, error) {
	return DecodeCatalog(defaultCatalogYAML)
}

// LoadCatalogFile reads a catalog document from disk. The result is usually
// merged over DefaultCatalog, so partial documents are fine here.
func LoadCatalogFile(path string) (Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, errors.Wrap(err, "read role catalog")
	}
	c, err := DecodeCatalog(b)
	if err != nil {
		return Catalog{}, errors.Wrapf(err, "role catalog %s", path)
	}
	return c, nil
}

// DecodeCatalog decodes a single YAML document, rejecting unknown fields.
func DecodeCatalog(b []byte) (Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Catalog{}, err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return Catalog{}, errors.New("yaml: multiple documents are not allowed")
		}
		return Catalog{}, err
	}
	if c.Version == 0 {
		c.Version = 1
	}
	return c, nil
}

// Merge returns c with the non-empty fields of override applied. Role specs
// are matched by name; a spec for an unknown name is appended so that
// Validate reports it.
func (c Catalog) Merge(override Catalog) Catalog {
	out := c
	out.Roles = append([]RoleSpec(nil), c.Roles...)
	if s := strings.TrimSpace(override.Product); s != "" {
		out.Product = s
	}
	if strings.TrimSpace(override.Protocol) != "" {
		out.Protocol = override.Protocol
	}
	if strings.TrimSpace(override.Instruction) != "" {
		out.Instruction = override.Instruction
	}
	for _, o := range override.Roles {
		i := indexOfSpec(out.Roles, o.Name)
		if i < 0 {
			out.Roles = append(out.Roles, o)
			continue
		}
		if o.Summary != "" {
			out.Roles[i].Summary = o.Summary
		}
		if o.Goal != "" {
			out.Roles[i].Goal = o.Goal
		}
		if len(o.Steps) > 0 {
			out.Roles[i].Steps = append([]string(nil), o.Steps...)
		}
	}
	return out
}

// Validate checks that the catalog covers exactly the team roster.
func (c Catalog) Validate() error {
	if c.Version != 1 {
		return errors.Errorf("unsupported catalog version %d", c.Version)
	}
	if strings.TrimSpace(c.Protocol) == "" {
		return errors.New("catalog protocol is empty")
	}
	if strings.TrimSpace(c.Instruction) == "" {
		return errors.New("catalog instruction template is empty")
	}
	seen := map[Role]bool{}
	for _, spec := range c.Roles {
		r, err := Parse(spec.Name)
		if err != nil {
			return errors.Wrap(err, "catalog")
		}
		if seen[r] {
			return errors.Errorf("catalog: duplicate role %q", spec.Name)
		}
		if strings.TrimSpace(spec.Goal) == "" {
			return errors.Errorf("catalog: role %q has no goal", spec.Name)
		}
		seen[r] = true
	}
	for _, r := range All() {
		if !seen[r] {
			return errors.Errorf("catalog: missing role %q", r.String())
		}
	}
	return nil
}

func indexOfSpec(specs []RoleSpec, name string) int {
	for i, s := range specs {
		if s.Name == name {
			return i
		}
	}
	return -1
}
