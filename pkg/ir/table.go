package ir

// VarDef is one global-variable declaration.
type VarDef struct {
	ID   int64
	Name string
	Type DataType
}

// Property is one field of a ClassDef.
type Property struct {
	Name string
	Type DataType
}

// MethodDef binds a property name to a function id for dynamic dispatch.
type MethodDef struct {
	Name   string
	FuncID int64
}

// ClassDef is a user-defined class: properties plus methods. Class
// identity is the arena id, never an owning pointer, per the design
// notes' cyclic-object-graph rule.
type ClassDef struct {
	ID         int64
	Name       string
	Properties []Property
	Methods    []MethodDef
}

// FuncDef is a function signature plus the parameter ordering needed to
// pop arguments in reverse declaration order at a Call/Node site.
type FuncDef struct {
	ID         int64
	Name       string
	Parameters []Property
	ReturnType DataType
	PackageName string // empty for user-defined (non-task) functions
	PackageVersion string
	Capabilities []string
}

// Table carries every symbol referenced by id from the graph: function
// signatures, class definitions, global variables, and the map of
// intermediate-result name to planned location. All cross-references
// inside the IR are ids into this table, never owning pointers, so that
// forked VM threads can share it behind a read-only handle.
type Table struct {
	Funcs   map[int64]*FuncDef
	Classes map[int64]*ClassDef
	Vars    map[int64]*VarDef
	Results map[string]string // IntermediateResult name -> planned domain
}

func NewTable() *Table {
	return &Table{
		Funcs:   make(map[int64]*FuncDef),
		Classes: make(map[int64]*ClassDef),
		Vars:    make(map[int64]*VarDef),
		Results: make(map[string]string),
	}
}

func (t *Table) Func(id int64) (*FuncDef, bool) {
	f, ok := t.Funcs[id]
	return f, ok
}

func (t *Table) Class(id int64) (*ClassDef, bool) {
	c, ok := t.Classes[id]
	return c, ok
}

func (t *Table) Var(id int64) (*VarDef, bool) {
	v, ok := t.Vars[id]
	return v, ok
}
