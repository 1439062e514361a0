package roles

import (
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
)

// Registry maps every team role to its rendered system instruction.
// It is immutable after construction and safe for concurrent use.
type Registry struct {
	instructions [Count]string
}

type protocolData struct {
	Product string
	Roles   []RoleSpec
	Finish  string
}

type instructionData struct {
	Product  string
	Protocol string
	Role     RoleSpec
}

// NewRegistry validates the catalog and renders all instructions up front.
func NewRegistry(c Catalog) (*Registry, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	// Roster order follows the Role enumeration, not document order.
	ordered := make([]RoleSpec, Count)
	for _, spec := range c.Roles {
		r, _ := Parse(spec.Name)
		ordered[r-1] = spec
	}

	protoTmpl, err := template.New("protocol").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(c.Protocol)
	if err != nil {
		return nil, errors.Wrap(err, "parse protocol template")
	}
	instTmpl, err := template.New("instruction").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(c.Instruction)
	if err != nil {
		return nil, errors.Wrap(err, "parse instruction template")
	}

	var sb strings.Builder
	if err := protoTmpl.Execute(&sb, protocolData{Product: c.Product, Roles: ordered, Finish: FinishName}); err != nil {
		return nil, errors.Wrap(err, "render protocol")
	}
	protocol := strings.TrimSpace(sb.String())

	reg := &Registry{}
	for i, spec := range ordered {
		sb.Reset()
		if err := instTmpl.Execute(&sb, instructionData{Product: c.Product, Protocol: protocol, Role: spec}); err != nil {
			return nil, errors.Wrapf(err, "render instruction for %s", spec.Name)
		}
		text := strings.TrimSpace(sb.String())
		if text == "" {
			return nil, errors.Errorf("instruction for %s rendered empty", spec.Name)
		}
		reg.instructions[i] = text + "\n"
	}
	return reg, nil
}

// DefaultRegistry renders the built-in catalog.
func DefaultRegistry() (*Registry, error) {
	c, err := DefaultCatalog()
	if err != nil {
		return nil, err
	}
	return NewRegistry(c)
}

// LoadRegistry renders the built-in catalog with the file at overridePath
// merged over it. An empty path yields the default registry.
func LoadRegistry(overridePath string) (*Registry, error) {
	c, err := DefaultCatalog()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(overridePath) != "" {
		o, err := LoadCatalogFile(overridePath)
		if err != nil {
			return nil, err
		}
		c = c.Merge(o)
	}
	return NewRegistry(c)
}

// Lookup returns the system instruction for a team role.
func (r *Registry) Lookup(role Role) (string, error) {
	switch role {
	case Producer, GameDesigner, NarrativeDesigner, LevelDesigner, ArtDirector,
		AssetGenerator, AudioEngineer, SystemArchitect, CoreGameplayDeveloper,
		UIDeveloper, YandexSDKIntegrator, ComplianceOfficer, TechnicalQA, UXAuditor:
		return r.instructions[role-1], nil
	default:
		return "", &UnknownRoleError{Name: role.String()}
	}
}

// LookupName resolves a display name and returns its instruction.
func (r *Registry) LookupName(name string) (Role, string, error) {
	role, err := Parse(name)
	if err != nil {
		return 0, "", err
	}
	text, err := r.Lookup(role)
	if err != nil {
		return 0, "", err
	}
	return role, text, nil
}
