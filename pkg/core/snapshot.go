package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"
)

// ID identifies a module, class or method record within one snapshot.
// Producers write object ids as integers or strings; both decode to ID.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

// UnmarshalYAML accepts any scalar.
func (id *ID) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: id must be a scalar", node.Line)
	}
	if node.Tag == "!!null" {
		*id = ""
		return nil
	}
	*id = ID(node.Value)
	return nil
}

// RecordType tags a module record or a constant entry.
type RecordType string

// Record types.
const (
	TypeModule RecordType = "module"
	TypeClass  RecordType = "class"
	TypeValue  RecordType = "value"
)

// IsModule reports whether t denotes a module or a class.
func (t RecordType) IsModule() bool {
	return t == TypeModule || t == TypeClass
}

// Snapshot is the portable record set produced by walking a live program.
//
// Every key of the record schema except a module's superclass is
// required. Decoding leaves a missing map, table or list nil while an
// empty one decodes to a non-nil value, so the loader can tell the two
// apart.
type Snapshot struct {
	Modules  *orderedmap.OrderedMap[ID, ModuleRecord]       `json:"modules" yaml:"modules"`
	TopLevel *orderedmap.OrderedMap[string, ConstantRecord] `json:"toplevel" yaml:"toplevel"`
	Methods  *orderedmap.OrderedMap[ID, MethodRecord]       `json:"methods" yaml:"methods"`
	Libs     []string                                       `json:"libs" yaml:"libs"`
}

// NewSnapshot returns a snapshot with every required collection present
// and empty.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Modules:  orderedmap.New[ID, ModuleRecord](),
		TopLevel: orderedmap.New[string, ConstantRecord](),
		Methods:  orderedmap.New[ID, MethodRecord](),
		Libs:     []string{},
	}
}

// Ref points at another record by id. Name is informational.
type Ref struct {
	ID   ID     `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// MethodRef points at a MethodRecord in Snapshot.Methods.
type MethodRef struct {
	ID   ID     `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// MethodTable groups method references by visibility.
type MethodTable struct {
	Public    []MethodRef `json:"public" yaml:"public"`
	Private   []MethodRef `json:"private" yaml:"private"`
	Protected []MethodRef `json:"protected" yaml:"protected"`
}

// NewMethodTable returns a table with all three visibility lists present.
func NewMethodTable() *MethodTable {
	return &MethodTable{Public: []MethodRef{}, Private: []MethodRef{}, Protected: []MethodRef{}}
}

// ModuleRecord describes one module or class.
type ModuleRecord struct {
	ID              ID                                             `json:"id" yaml:"id"`
	Type            RecordType                                     `json:"type" yaml:"type"`
	Name            string                                         `json:"name" yaml:"name"`
	Superclass      *Ref                                           `json:"superclass,omitempty" yaml:"superclass,omitempty"`
	IncludedModules []Ref                                          `json:"included_modules" yaml:"included_modules"`
	Ancestors       []Ref                                          `json:"ancestors" yaml:"ancestors"`
	InstanceMethods *MethodTable                                   `json:"instance_methods" yaml:"instance_methods"`
	Methods         *MethodTable                                   `json:"methods" yaml:"methods"`
	Constants       *orderedmap.OrderedMap[string, ConstantRecord] `json:"constants" yaml:"constants"`
}

// NewModuleRecord returns a record with every required collection present
// and empty.
func NewModuleRecord(id ID, typ RecordType, name string) ModuleRecord {
	return ModuleRecord{
		ID:              id,
		Type:            typ,
		Name:            name,
		IncludedModules: []Ref{},
		Ancestors:       []Ref{},
		InstanceMethods: NewMethodTable(),
		Methods:         NewMethodTable(),
		Constants:       orderedmap.New[string, ConstantRecord](),
	}
}

// ConstantRecord is either a reference to a module record (Type module or
// class, with ID and Name) or an inline value (Type value, with Class and
// Methods).
type ConstantRecord struct {
	Type    RecordType   `json:"type" yaml:"type"`
	ID      ID           `json:"id,omitempty" yaml:"id,omitempty"`
	Name    string       `json:"name,omitempty" yaml:"name,omitempty"`
	Class   *Ref         `json:"class,omitempty" yaml:"class,omitempty"`
	Methods *MethodTable `json:"methods,omitempty" yaml:"methods,omitempty"`
}

// IsValue reports whether the entry is a plain value rather than a module.
func (c ConstantRecord) IsValue() bool {
	return c.Type == TypeValue
}

// MethodRecord is the shared body of a method.
type MethodRecord struct {
	Name       string      `json:"name" yaml:"name"`
	Owner      Ref         `json:"owner" yaml:"owner"`
	Location   *Location   `json:"location" yaml:"location"`
	Parameters []Parameter `json:"parameters" yaml:"parameters"`
}

// Location is a source position, encoded as [file, line].
type Location struct {
	File string
	Line int
}

// String formats the location as file:line.
func (l Location) String() string {
	return l.File + ":" + strconv.Itoa(l.Line)
}

// UnmarshalJSON decodes [file, line].
func (l *Location) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("location: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("location: expected [file, line], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &l.File); err != nil {
		return fmt.Errorf("location file: %w", err)
	}
	if err := json.Unmarshal(pair[1], &l.Line); err != nil {
		return fmt.Errorf("location line: %w", err)
	}
	return nil
}

// MarshalJSON encodes the location as [file, line].
func (l Location) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{l.File, l.Line})
}

// UnmarshalYAML decodes a two element sequence.
func (l *Location) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode || len(node.Content) != 2 {
		return fmt.Errorf("line %d: location must be [file, line]", node.Line)
	}
	if err := node.Content[0].Decode(&l.File); err != nil {
		return err
	}
	return node.Content[1].Decode(&l.Line)
}

// ParameterKind classifies a method parameter (req, opt, rest, keyreq,
// key, keyrest, block, ...). Kinds are taken verbatim from the producer.
type ParameterKind string

// Parameter kinds emitted by the producer.
const (
	ParamRequired    ParameterKind = "req"
	ParamOptional    ParameterKind = "opt"
	ParamRest        ParameterKind = "rest"
	ParamKeyRequired ParameterKind = "keyreq"
	ParamKey         ParameterKind = "key"
	ParamKeyRest     ParameterKind = "keyrest"
	ParamBlock       ParameterKind = "block"
)

// Parameter describes one formal parameter, encoded as [kind] or [kind, name].
type Parameter struct {
	Kind ParameterKind
	Name string
}

// String renders the parameter as it would appear in a method signature,
// for example "*rest", "key:" or "&blk". Default values are shown as "...".
func (p Parameter) String() string {
	switch p.Kind {
	case ParamRequired:
		return p.Name
	case ParamOptional:
		return p.Name + " = ..."
	case ParamRest:
		return "*" + p.Name
	case ParamKeyRequired:
		return p.Name + ":"
	case ParamKey:
		return p.Name + ": ..."
	case ParamKeyRest:
		return "**" + p.Name
	case ParamBlock:
		return "&" + p.Name
	default:
		if p.Name == "" {
			return string(p.Kind)
		}
		return string(p.Kind) + " " + p.Name
	}
}

// UnmarshalJSON decodes [kind] or [kind, name].
func (p *Parameter) UnmarshalJSON(data []byte) error {
	var parts []string
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("parameter: %w", err)
	}
	return p.fromParts(parts)
}

// MarshalJSON encodes the parameter as [kind] or [kind, name].
func (p Parameter) MarshalJSON() ([]byte, error) {
	if p.Name == "" {
		return json.Marshal([]string{string(p.Kind)})
	}
	return json.Marshal([]string{string(p.Kind), p.Name})
}

// UnmarshalYAML decodes [kind] or [kind, name].
func (p *Parameter) UnmarshalYAML(node *yaml.Node) error {
	var parts []string
	if err := node.Decode(&parts); err != nil {
		return fmt.Errorf("line %d: parameter: %w", node.Line, err)
	}
	return p.fromParts(parts)
}

func (p *Parameter) fromParts(parts []string) error {
	switch len(parts) {
	case 1:
		p.Kind = ParameterKind(parts[0])
	case 2:
		p.Kind = ParameterKind(parts[0])
		p.Name = parts[1]
	default:
		return fmt.Errorf("parameter: expected [kind] or [kind, name], got %d elements", len(parts))
	}
	if p.Kind == "" {
		return fmt.Errorf("parameter: empty kind")
	}
	return nil
}
