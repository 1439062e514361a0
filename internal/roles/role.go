package roles

import (
	"fmt"
	"strings"
)

// Role is one of the fixed team members, or the synthetic terminal Finish.
// The zero value is not a valid role.
type Role int

const (
	Producer Role = iota + 1
	GameDesigner
	NarrativeDesigner
	LevelDesigner
	ArtDirector
	AssetGenerator
	AudioEngineer
	SystemArchitect
	CoreGameplayDeveloper
	UIDeveloper
	YandexSDKIntegrator
	ComplianceOfficer
	TechnicalQA
	UXAuditor

	// Finish ends a run. It can be named as a successor but never looked up.
	Finish
)

// FinishName is the wire value of Finish.
const FinishName = "FINISH"

// Count is the number of lookup-able roles (Finish excluded).
const Count = int(UXAuditor)

// All returns the team roster in order.
func All() []Role {
	out := make([]Role, 0, Count)
	for r := Producer; r <= UXAuditor; r++ {
		out = append(out, r)
	}
	return out
}

// Names returns the display names of All, in order.
func Names() []string {
	out := make([]string, 0, Count)
	for _, r := range All() {
		out = append(out, r.String())
	}
	return out
}

func (r Role) String() string {
	switch r {
	case Producer:
		return "Producer"
	case GameDesigner:
		return "Game Designer"
	case NarrativeDesigner:
		return "Narrative Designer"
	case LevelDesigner:
		return "Level Designer"
	case ArtDirector:
		return "Art Director"
	case AssetGenerator:
		return "Asset Generator"
	case AudioEngineer:
		return "Audio Engineer"
	case SystemArchitect:
		return "System Architect"
	case CoreGameplayDeveloper:
		return "Core Gameplay Developer"
	case UIDeveloper:
		return "UI Developer"
	case YandexSDKIntegrator:
		return "Yandex SDK Integrator"
	case ComplianceOfficer:
		return "Compliance Officer"
	case TechnicalQA:
		return "Technical QA"
	case UXAuditor:
		return "UX Auditor"
	case Finish:
		return FinishName
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// IsAgent reports whether r is one of the 14 team roles.
func (r Role) IsAgent() bool { return r >= Producer && r <= UXAuditor }

// IsTerminal reports whether r is Finish.
func (r Role) IsTerminal() bool { return r == Finish }

// Parse resolves a team role by its exact display name. Finish is rejected.
func Parse(name string) (Role, error) {
	for _, r := range All() {
		if r.String() == name {
			return r, nil
		}
	}
	return 0, &UnknownRoleError{Name: name}
}

// ParseNext resolves a successor value: any team role or FINISH.
func ParseNext(name string) (Role, bool) {
	if name == FinishName {
		return Finish, true
	}
	r, err := Parse(name)
	if err != nil {
		return 0, false
	}
	return r, true
}

// Lookup is the case- and space-tolerant variant of Parse, used for
// human input on the command line.
func Lookup(name string) (Role, error) {
	want := strings.Join(strings.Fields(name), " ")
	for _, r := range All() {
		if strings.EqualFold(r.String(), want) {
			return r, nil
		}
	}
	return 0, &UnknownRoleError{Name: name}
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.IsAgent() && !r.IsTerminal() {
		return nil, fmt.Errorf("invalid role value %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	v, ok := ParseNext(string(b))
	if !ok {
		return &UnknownRoleError{Name: string(b)}
	}
	*r = v
	return nil
}
