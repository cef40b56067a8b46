// Package config models Arma config classes and decodes them from the
// rapified (binary) and the plain text format.
package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Entry tags of the rapified format.
const (
	tagClass  byte = 0
	tagValue  byte = 1
	tagArray  byte = 2
	tagExtern byte = 3
	tagDelete byte = 4
	tagAppend byte = 5
)

// nestedArray tags an array element that is itself an array.
const nestedArray byte = 3

type ValueType byte

const (
	String ValueType = 0
	Float  ValueType = 1
	Int    ValueType = 2
)

func (t ValueType) String() string {
	switch t {
	case String:
		return "string"
	case Float:
		return "float"
	case Int:
		return "int"
	default:
		return fmt.Sprintf("ValueType(%d)", byte(t))
	}
}

// Entry is one member of a class body: *SubclassEntry, *ExternEntry,
// *ScalarEntry or *ArrayEntry.
type Entry interface {
	EntryName() string
	entry()
}

// Field is an entry holding data: *ScalarEntry or *ArrayEntry.
type Field interface {
	Entry
	field()
}

// Element is one item of an array: a Value or a nested Array.
type Element interface {
	element()
}

// SubclassEntry declares a class with a body. Offset is the position of
// the body in a rapified file and zero for text input.
type SubclassEntry struct {
	Name   string
	Offset int32
	Class  *Class
}

// ExternEntry declares a class defined elsewhere ("class Name;").
type ExternEntry struct {
	Name string
}

type ScalarEntry struct {
	Name  string
	Value Value
}

// ArrayEntry is "name[] = {...}", or "name[] += {...}" when Append is set.
// Appended elements are not merged into any earlier definition.
type ArrayEntry struct {
	Name     string
	Elements Array
	Append   bool
}

func (*SubclassEntry) entry() {}
func (*ExternEntry) entry()   {}
func (*ScalarEntry) entry()   {}
func (*ArrayEntry) entry()    {}

func (*ScalarEntry) field() {}
func (*ArrayEntry) field()  {}

func (e *SubclassEntry) EntryName() string { return e.Name }
func (e *ExternEntry) EntryName() string   { return e.Name }
func (e *ScalarEntry) EntryName() string   { return e.Name }
func (e *ArrayEntry) EntryName() string    { return e.Name }

// Class returns a placeholder without parent or entries.
func (e *ExternEntry) Class() *Class {
	return &Class{Name: e.Name}
}

// Array is an ordered list of elements that may nest without limit.
type Array []Element

func (Array) element() {}

// Value is a scalar: a string, a 32-bit float or a 32-bit integer.
type Value struct {
	Type  ValueType
	Text  string
	Float float32
	Int   int32
}

func (Value) element() {}

func StringValue(s string) Value { return Value{Type: String, Text: s} }
func FloatValue(f float32) Value { return Value{Type: Float, Float: f} }
func IntValue(i int32) Value     { return Value{Type: Int, Int: i} }
func (v Value) IsString() bool   { return v.Type == String }
func (v Value) IsNumber() bool   { return v.Type == Float || v.Type == Int }

func (v Value) AsString() (string, bool) {
	return v.Text, v.Type == String
}

func (v Value) AsFloat() (float32, bool) {
	return v.Float, v.Type == Float
}

func (v Value) AsInt() (int32, bool) {
	return v.Int, v.Type == Int
}

// Number returns either numeric type as float64.
func (v Value) Number() (float64, bool) {
	switch v.Type {
	case Float:
		return float64(v.Float), true
	case Int:
		return float64(v.Int), true
	}
	return 0, false
}

// String renders v as a text config literal.
func (v Value) String() string {
	switch v.Type {
	case String:
		return quote(v.Text)
	case Int:
		return strconv.FormatInt(int64(v.Int), 10)
	case Float:
		return formatFloat(v.Float)
	}
	return fmt.Sprintf("<%s>", v.Type)
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func formatFloat(f float32) string {
	s := strconv.FormatFloat(float64(f), 'g', -1, 32)
	if math.IsInf(float64(f), 0) || math.IsNaN(float64(f)) {
		return s
	}
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func (a Array) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, el := range a {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprint(&b, el)
	}
	b.WriteByte('}')
	return b.String()
}
