package defsdb

import "github.com/leapstack-labs/defsdb/pkg/core"

// Entity kinds as reported by Describe.
const (
	ViewModule = "module"
	ViewClass  = "class"
	ViewValue  = "value"
)

// EntityView is a flat, serializable description of an entity. Related
// modules are referred to by qualified name.
type EntityView struct {
	Kind            string       `json:"kind"`
	ID              core.ID      `json:"id,omitempty"`
	Name            string       `json:"name"`
	Superclass      string       `json:"superclass,omitempty"`
	IncludedModules []string     `json:"included_modules,omitempty"`
	Ancestors       []string     `json:"ancestors,omitempty"`
	Constants       []string     `json:"constants,omitempty"`
	Class           string       `json:"class,omitempty"`
	Methods         []MethodView `json:"methods,omitempty"`
}

// MethodView describes a method definition together with its body.
type MethodView struct {
	Name       string           `json:"name"`
	Visibility string           `json:"visibility"`
	Singleton  bool             `json:"singleton"`
	DefinedIn  string           `json:"defined_in,omitempty"`
	Owner      string           `json:"owner,omitempty"`
	Location   string           `json:"location,omitempty"`
	Parameters []core.Parameter `json:"parameters"`
}

// Describe flattens e into an EntityView. A nil entity yields the zero view.
func Describe(e Entity) EntityView {
	switch v := e.(type) {
	case *Module:
		if v == nil {
			return EntityView{}
		}
		view := EntityView{
			Kind:            v.kind.String(),
			ID:              v.id,
			Name:            v.name,
			IncludedModules: moduleNames(v.includedModules),
			Ancestors:       moduleNames(v.ancestors),
			Constants:       v.ConstantNames(),
			Methods:         DescribeMethods(v.methods),
		}
		if v.superclass != nil {
			view.Superclass = v.superclass.name
		}
		return view
	case *Value:
		if v == nil {
			return EntityView{}
		}
		view := EntityView{
			Kind:    ViewValue,
			Name:    v.name,
			Methods: DescribeMethods(v.methods),
		}
		if v.class != nil {
			view.Class = v.class.name
		}
		return view
	default:
		return EntityView{}
	}
}

// DescribeMethod flattens a method definition.
func DescribeMethod(d *MethodDefinition) MethodView {
	view := MethodView{
		Name:       d.body.name,
		Visibility: d.visibility.String(),
		Singleton:  !d.instance,
		Parameters: d.body.Parameters(),
	}
	if view.Parameters == nil {
		view.Parameters = []core.Parameter{}
	}
	if d.definedIn != nil {
		view.DefinedIn = d.definedIn.Name()
	}
	if d.body.owner != nil {
		view.Owner = d.body.owner.name
	}
	if loc, ok := d.body.Location(); ok {
		view.Location = loc.String()
	}
	return view
}

// DescribeMethods flattens a list of method definitions, keeping order.
func DescribeMethods(defs []*MethodDefinition) []MethodView {
	if len(defs) == 0 {
		return nil
	}
	out := make([]MethodView, len(defs))
	for i, d := range defs {
		out[i] = DescribeMethod(d)
	}
	return out
}

func moduleNames(mods []*Module) []string {
	if len(mods) == 0 {
		return nil
	}
	out := make([]string, len(mods))
	for i, m := range mods {
		out[i] = m.name
	}
	return out
}

// BodyView describes a method body on its own, without the visibility and
// kind a definition adds.
type BodyView struct {
	Name       string           `json:"name"`
	Owner      string           `json:"owner,omitempty"`
	OwnerID    core.ID          `json:"owner_id,omitempty"`
	Location   string           `json:"location,omitempty"`
	Parameters []core.Parameter `json:"parameters"`
}

// DescribeBody flattens a method body.
func DescribeBody(b *MethodBody) BodyView {
	view := BodyView{
		Name:       b.name,
		Parameters: b.Parameters(),
	}
	if view.Parameters == nil {
		view.Parameters = []core.Parameter{}
	}
	if b.owner != nil {
		view.Owner = b.owner.name
		view.OwnerID = b.owner.id
	}
	if loc, ok := b.Location(); ok {
		view.Location = loc.String()
	}
	return view
}
