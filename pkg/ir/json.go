package ir

import (
	"encoding/json"
	"fmt"
)

// jsonValue is the wire representation of a Value: a discriminated union
// keyed by "type", hand-rolling MarshalJSON/UnmarshalJSON for the sum
// type rather than relying on struct tags (Value's fields are
// intentionally unexported so construction goes
// through the VxxxValue constructors).
type jsonValue struct {
	Type    DataType          `json:"type"`
	Bool    *bool             `json:"bool,omitempty"`
	Int     *int64            `json:"int,omitempty"`
	Real    *float64          `json:"real,omitempty"`
	Str     *string           `json:"str,omitempty"`
	Array   []Value           `json:"array,omitempty"`
	ClassID *int64            `json:"classId,omitempty"`
	Fields  map[string]Value  `json:"fields,omitempty"`
	FuncDef *int64            `json:"funcDef,omitempty"`
	Values  []Value           `json:"values,omitempty"`
	DataName *string          `json:"dataName,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	jv := jsonValue{Type: v.typ}
	switch v.typ {
	case TypeBoolean:
		jv.Bool = &v.boolean
	case TypeInteger:
		jv.Int = &v.integer
	case TypeReal:
		jv.Real = &v.real
	case TypeString:
		jv.Str = &v.str
	case TypeArray:
		jv.Array = v.array
	case TypeInstance:
		jv.ClassID = &v.instanceClass
		jv.Fields = v.instanceFields
	case TypeFunction:
		jv.FuncDef = &v.funcDef
	case TypeMethod:
		jv.Values = v.methodValues
		jv.ClassID = &v.methodClass
		jv.FuncDef = &v.methodFuncDef
	case TypeData, TypeIntermediateResult:
		jv.DataName = &v.dataName
	case TypeVoid:
		// no payload
	}
	return json.Marshal(jv)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return err
	}
	switch jv.Type {
	case TypeVoid:
		*v = VoidValue()
	case TypeBoolean:
		if jv.Bool == nil {
			return fmt.Errorf("value: missing bool payload")
		}
		*v = BoolValue(*jv.Bool)
	case TypeInteger:
		if jv.Int == nil {
			return fmt.Errorf("value: missing int payload")
		}
		*v = IntValue(*jv.Int)
	case TypeReal:
		if jv.Real == nil {
			return fmt.Errorf("value: missing real payload")
		}
		*v = RealValue(*jv.Real)
	case TypeString:
		if jv.Str == nil {
			return fmt.Errorf("value: missing str payload")
		}
		*v = StringValue(*jv.Str)
	case TypeArray:
		*v = ArrayValue(jv.Array)
	case TypeInstance:
		if jv.ClassID == nil {
			return fmt.Errorf("value: missing classId payload")
		}
		*v = InstanceValue(*jv.ClassID, jv.Fields)
	case TypeFunction:
		if jv.FuncDef == nil {
			return fmt.Errorf("value: missing funcDef payload")
		}
		*v = FunctionValue(*jv.FuncDef)
	case TypeMethod:
		if jv.ClassID == nil || jv.FuncDef == nil {
			return fmt.Errorf("value: missing method payload")
		}
		*v = MethodValue(jv.Values, *jv.ClassID, *jv.FuncDef)
	case TypeData:
		if jv.DataName == nil {
			return fmt.Errorf("value: missing dataName payload")
		}
		*v = DataValue(*jv.DataName)
	case TypeIntermediateResult:
		if jv.DataName == nil {
			return fmt.Errorf("value: missing dataName payload")
		}
		*v = ResultValue(*jv.DataName)
	default:
		return fmt.Errorf("value: unknown type %q", jv.Type)
	}
	return nil
}
