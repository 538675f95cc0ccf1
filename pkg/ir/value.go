package ir

import "fmt"

// Value is the runtime value domain of the workflow VM.
//
// Value ∈ { Void, Boolean, Integer, Real, String, Array[Value],
// Instance{fields, classDef}, Function{defId}, Method{values, classDef, funcDef},
// Data{name}, IntermediateResult{name} }.
type Value struct {
	typ DataType

	boolean bool
	integer int64
	real    float64
	str     string
	array   []Value

	instanceClass  int64
	instanceFields map[string]Value

	funcDef int64

	methodValues  []Value
	methodClass   int64
	methodFuncDef int64

	dataName string
}

func VoidValue() Value                 { return Value{typ: TypeVoid} }
func BoolValue(b bool) Value           { return Value{typ: TypeBoolean, boolean: b} }
func IntValue(i int64) Value           { return Value{typ: TypeInteger, integer: i} }
func RealValue(r float64) Value        { return Value{typ: TypeReal, real: r} }
func StringValue(s string) Value       { return Value{typ: TypeString, str: s} }
func ArrayValue(elems []Value) Value   { return Value{typ: TypeArray, array: elems} }
func FunctionValue(defID int64) Value  { return Value{typ: TypeFunction, funcDef: defID} }
func DataValue(name string) Value      { return Value{typ: TypeData, dataName: name} }
func ResultValue(name string) Value    { return Value{typ: TypeIntermediateResult, dataName: name} }

func InstanceValue(classID int64, fields map[string]Value) Value {
	return Value{typ: TypeInstance, instanceClass: classID, instanceFields: fields}
}

func MethodValue(values []Value, classID, funcDefID int64) Value {
	return Value{typ: TypeMethod, methodValues: values, methodClass: classID, methodFuncDef: funcDefID}
}

// DataType returns the value's statically derivable type.
func (v Value) DataType() DataType { return v.typ }

func (v Value) Bool() bool             { return v.boolean }
func (v Value) Int() int64             { return v.integer }
func (v Value) Real() float64          { return v.real }
func (v Value) Str() string            { return v.str }
func (v Value) Array() []Value         { return v.array }
func (v Value) FuncDefID() int64       { return v.funcDef }
func (v Value) DataName() string       { return v.dataName }
func (v Value) InstanceClassID() int64 { return v.instanceClass }
func (v Value) InstanceFields() map[string]Value {
	return v.instanceFields
}
func (v Value) MethodValues() []Value   { return v.methodValues }
func (v Value) MethodClassID() int64    { return v.methodClass }
func (v Value) MethodFuncDefID() int64  { return v.methodFuncDef }

func (v Value) String() string {
	switch v.typ {
	case TypeVoid:
		return "void"
	case TypeBoolean:
		return fmt.Sprintf("%t", v.boolean)
	case TypeInteger:
		return fmt.Sprintf("%d", v.integer)
	case TypeReal:
		return fmt.Sprintf("%g", v.real)
	case TypeString:
		return v.str
	case TypeArray:
		return fmt.Sprintf("%v", v.array)
	case TypeData:
		return "Data(" + v.dataName + ")"
	case TypeIntermediateResult:
		return "IntermediateResult(" + v.dataName + ")"
	default:
		return string(v.typ)
	}
}

// AllowedBy reports whether a value of type `have` may be assigned to a
// location of type `want`. `Any` subsumes all types; numeric widening
// (integer -> real) is explicitly NOT permitted; instances require an
// exact class id match, checked by the caller since DataType alone
// doesn't carry the class id.
func AllowedBy(want, have DataType) bool {
	if want == TypeAny {
		return true
	}
	return want == have
}

// IsNumeric reports whether t is Integer or Real.
func IsNumeric(t DataType) bool { return t == TypeInteger || t == TypeReal }
