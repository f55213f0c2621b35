package vtile

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb/encoding/mvt/vectortile"
)

//ValueType 属性值类型
type ValueType uint8

// Value types, in wire field order.
const (
	StringValue ValueType = iota
	FloatValue
	DoubleValue
	IntValue
	UintValue
	SintValue
	BoolValue
)

func (t ValueType) String() string {
	switch t {
	case StringValue:
		return "string"
	case FloatValue:
		return "float"
	case DoubleValue:
		return "double"
	case IntValue:
		return "int"
	case UintValue:
		return "uint"
	case SintValue:
		return "sint"
	case BoolValue:
		return "bool"
	}
	return "unknown"
}

// Value is a property value. It is comparable, so it can key the layer's
// value dictionary directly. Numbers are kept as raw bits, which makes
// 0.0 and -0.0 distinct entries.
type Value struct {
	Type ValueType
	str  string
	bits uint64
}

//String 字符串值
func String(s string) Value { return Value{Type: StringValue, str: s} }

//Float 单精度浮点值
func Float(f float32) Value { return Value{Type: FloatValue, bits: uint64(math.Float32bits(f))} }

//Double 双精度浮点值
func Double(f float64) Value { return Value{Type: DoubleValue, bits: math.Float64bits(f)} }

//Int 有符号整数值(int_value)
func Int(i int64) Value { return Value{Type: IntValue, bits: uint64(i)} }

//Uint 无符号整数值
func Uint(u uint64) Value { return Value{Type: UintValue, bits: u} }

//Sint zigzag编码的有符号整数值(sint_value)
func Sint(i int64) Value { return Value{Type: SintValue, bits: uint64(i)} }

//Bool 布尔值
func Bool(b bool) Value {
	v := Value{Type: BoolValue}
	if b {
		v.bits = 1
	}
	return v
}

// ValueOf converts a Go value into a Value. Signed integers map to Sint,
// unsigned to Uint, float64 to Double and float32 to Float. json.Number is
// kept integral when it parses as one.
func ValueOf(x interface{}) (Value, error) {
	switch x := x.(type) {
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case []byte:
		return String(string(x)), nil
	case bool:
		return Bool(x), nil
	case float64:
		return Double(x), nil
	case float32:
		return Float(x), nil
	case int:
		return Sint(int64(x)), nil
	case int8:
		return Sint(int64(x)), nil
	case int16:
		return Sint(int64(x)), nil
	case int32:
		return Sint(int64(x)), nil
	case int64:
		return Sint(x), nil
	case uint:
		return Uint(uint64(x)), nil
	case uint8:
		return Uint(uint64(x)), nil
	case uint16:
		return Uint(uint64(x)), nil
	case uint32:
		return Uint(uint64(x)), nil
	case uint64:
		return Uint(x), nil
	case json.Number:
		if i, err := strconv.ParseInt(string(x), 10, 64); err == nil {
			return Sint(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("unsupported number %q: %w", x, err)
		}
		return Double(f), nil
	}
	return Value{}, fmt.Errorf("unsupported property value type %T", x)
}

//Interface 转换为Go原生类型
func (v Value) Interface() interface{} {
	switch v.Type {
	case StringValue:
		return v.str
	case FloatValue:
		return math.Float32frombits(uint32(v.bits))
	case DoubleValue:
		return math.Float64frombits(v.bits)
	case IntValue, SintValue:
		return int64(v.bits)
	case UintValue:
		return v.bits
	case BoolValue:
		return v.bits == 1
	}
	return nil
}

func (v Value) String() string {
	if v.Type == StringValue {
		return v.str
	}
	return fmt.Sprint(v.Interface())
}

func (v Value) proto() *vectortile.Tile_Value {
	pv := &vectortile.Tile_Value{}
	switch v.Type {
	case StringValue:
		s := v.str
		pv.StringValue = &s
	case FloatValue:
		f := math.Float32frombits(uint32(v.bits))
		pv.FloatValue = &f
	case DoubleValue:
		f := math.Float64frombits(v.bits)
		pv.DoubleValue = &f
	case IntValue:
		i := int64(v.bits)
		pv.IntValue = &i
	case UintValue:
		u := v.bits
		pv.UintValue = &u
	case SintValue:
		i := int64(v.bits)
		pv.SintValue = &i
	case BoolValue:
		b := v.bits == 1
		pv.BoolValue = &b
	}
	return pv
}

// valueFromProto requires exactly one member of the union to be set.
func valueFromProto(pv *vectortile.Tile_Value) (Value, error) {
	if pv == nil {
		return Value{}, ErrInvalidValue
	}
	var (
		v   Value
		set int
	)
	if pv.StringValue != nil {
		v, set = String(*pv.StringValue), set+1
	}
	if pv.FloatValue != nil {
		v, set = Float(*pv.FloatValue), set+1
	}
	if pv.DoubleValue != nil {
		v, set = Double(*pv.DoubleValue), set+1
	}
	if pv.IntValue != nil {
		v, set = Int(*pv.IntValue), set+1
	}
	if pv.UintValue != nil {
		v, set = Uint(*pv.UintValue), set+1
	}
	if pv.SintValue != nil {
		v, set = Sint(*pv.SintValue), set+1
	}
	if pv.BoolValue != nil {
		v, set = Bool(*pv.BoolValue), set+1
	}
	if set != 1 {
		return Value{}, ErrInvalidValue
	}
	return v, nil
}
