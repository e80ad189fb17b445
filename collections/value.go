package collections

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/cases"
)

// Kind identifies which variant a Value holds. The numeric codes are part of
// the snapshot format and double as the cross-kind sort rank.
type Kind uint8

const (
	KindNoItem  Kind = iota // reported for absent slots, never held by a Value
	KindNone                // nothing
	KindInteger             // int32
	KindReal                // float32
	KindForm                // external form id
	KindObject              // handle of a managed object
	KindString              // string
)

var kindNames = [...]string{
	KindNoItem:  "NoItem",
	KindNone:    "None",
	KindInteger: "Integer",
	KindReal:    "Real",
	KindForm:    "Form",
	KindObject:  "Object",
	KindString:  "String",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ---------------------------------------------------------------------------
// Value: tagged union stored in every container slot
// ---------------------------------------------------------------------------

// Value is a closed tagged union over None, Integer, Real, Form, Object and
// String. The zero Value is None.
//
// Integer, Real, Form and Object payloads share the 32-bit num field: the
// integer bits, math.Float32bits of the real, the form id, or the handle.
// An Object value holds only the handle of its target; the container holding
// the value owns one reference on that target.
type Value struct {
	kind Kind
	num  uint32
	str  string
}

// None returns the empty value.
func None() Value { return Value{} }

// IntValue returns an Integer value.
func IntValue(i int32) Value {
	return Value{kind: KindInteger, num: uint32(i)}
}

// BoolValue stores a bool as Integer 0 or 1.
func BoolValue(b bool) Value {
	if b {
		return IntValue(1)
	}
	return IntValue(0)
}

// RealValue returns a Real value.
func RealValue(f float32) Value {
	return Value{kind: KindReal, num: math.Float32bits(f)}
}

// FormValue returns a Form value. The zero id means "no external object" and
// collapses to None.
func FormValue(id FormID) Value {
	if id == FormZero {
		return Value{}
	}
	return Value{kind: KindForm, num: uint32(id)}
}

// StringValue returns a String value.
func StringValue(s string) Value {
	return Value{kind: KindString, str: s}
}

// StringPtrValue returns a String value, or None for a nil pointer.
func StringPtrValue(s *string) Value {
	if s == nil {
		return Value{}
	}
	return StringValue(*s)
}

// ObjectValue returns an Object value referring to o, or None when o is nil.
// Building the value does not retain o; inserting it into a container does.
func ObjectValue(o Object) Value {
	if o == nil {
		return Value{}
	}
	return handleValue(o.Handle())
}

func handleValue(h Handle) Value {
	if h == HandleNull {
		return Value{}
	}
	return Value{kind: KindObject, num: uint32(h)}
}

// ---------------------------------------------------------------------------
// Type queries
// ---------------------------------------------------------------------------

// Kind returns the variant held by v.
func (v Value) Kind() Kind {
	if v.kind == KindNoItem {
		return KindNone
	}
	return v.kind
}

// IsNull reports whether v holds nothing.
func (v Value) IsNull() bool { return v.Kind() == KindNone }

// IsNumber reports whether v is an Integer or a Real.
func (v Value) IsNumber() bool { return v.kind == KindInteger || v.kind == KindReal }

// IsObject reports whether v holds an object handle.
func (v Value) IsObject() bool { return v.kind == KindObject }

// ---------------------------------------------------------------------------
// Strict accessors
// ---------------------------------------------------------------------------

// Int returns the integer if v is an Integer.
func (v Value) Int() (int32, bool) {
	if v.kind != KindInteger {
		return 0, false
	}
	return int32(v.num), true
}

// Real returns the real if v is a Real.
func (v Value) Real() (float32, bool) {
	if v.kind != KindReal {
		return 0, false
	}
	return math.Float32frombits(v.num), true
}

// FormID returns the form id if v is a Form.
func (v Value) FormID() (FormID, bool) {
	if v.kind != KindForm {
		return FormZero, false
	}
	return FormID(v.num), true
}

// Handle returns the object handle if v is an Object.
func (v Value) Handle() (Handle, bool) {
	if v.kind != KindObject {
		return HandleNull, false
	}
	return Handle(v.num), true
}

// Str returns the string if v is a String.
func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// ---------------------------------------------------------------------------
// Lossy accessors
// ---------------------------------------------------------------------------

// AsInt reads v as an integer. Reals are truncated toward zero; every other
// kind reads as 0.
func (v Value) AsInt() int32 {
	switch v.kind {
	case KindInteger:
		return int32(v.num)
	case KindReal:
		return int32(math.Float32frombits(v.num))
	}
	return 0
}

// AsReal reads v as a real. Integers are widened; every other kind reads as 0.
func (v Value) AsReal() float32 {
	switch v.kind {
	case KindReal:
		return math.Float32frombits(v.num)
	case KindInteger:
		return float32(int32(v.num))
	}
	return 0
}

// AsString returns the string, or "" when v is not a String.
func (v Value) AsString() string {
	s, _ := v.Str()
	return s
}

// AsFormID returns the form id, or FormZero when v is not a Form.
func (v Value) AsFormID() FormID {
	id, _ := v.FormID()
	return id
}

// AsHandle returns the handle, or HandleNull when v is not an Object.
func (v Value) AsHandle() Handle {
	h, _ := v.Handle()
	return h
}

// Object resolves an Object value through the store. It returns nil when v
// is not an Object or its target no longer exists.
func (v Value) Object(s *Store) Object {
	h, ok := v.Handle()
	if !ok || s == nil {
		return nil
	}
	return s.Lookup(h)
}

// ResolveForm re-resolves a Form value through the host resolver. It reports
// false when v is not a Form or the id no longer resolves.
func (v Value) ResolveForm(r FormResolver) (FormID, bool) {
	id, ok := v.FormID()
	if !ok || r == nil {
		return FormZero, false
	}
	resolved, ok := r.ResolveFormID(id)
	if !ok || resolved == FormZero {
		return FormZero, false
	}
	return resolved, true
}

// NullifyObject degrades an Object value to None in place. It returns the
// handle that was dropped, if any.
func (v *Value) NullifyObject() (Handle, bool) {
	h, ok := v.Handle()
	if ok {
		*v = Value{}
	}
	return h, ok
}

// ---------------------------------------------------------------------------
// Equality and ordering
// ---------------------------------------------------------------------------

// Equal reports whether a and b hold the same variant and the same payload.
// Strings compare case-insensitively. Values of different kinds are never
// equal.
func (v Value) Equal(other Value) bool {
	if v.Kind() != other.Kind() {
		return false
	}
	switch v.Kind() {
	case KindNone:
		return true
	case KindReal:
		return math.Float32frombits(v.num) == math.Float32frombits(other.num)
	case KindString:
		return foldKey(v.str) == foldKey(other.str)
	}
	return v.num == other.num
}

// Compare orders values by kind rank, then by payload within a kind:
// None < Integer < Real < Form < Object < String. It returns -1, 0 or +1.
// NaN sorts before every other Real.
func Compare(a, b Value) int {
	ka, kb := a.Kind(), b.Kind()
	if ka != kb {
		if ka < kb {
			return -1
		}
		return 1
	}
	switch ka {
	case KindNone:
		return 0
	case KindInteger:
		return cmpOrdered(int32(a.num), int32(b.num))
	case KindReal:
		return cmpReal(math.Float32frombits(a.num), math.Float32frombits(b.num))
	case KindString:
		return strings.Compare(foldKey(a.str), foldKey(b.str))
	}
	return cmpOrdered(a.num, b.num)
}

// Less reports whether v sorts before other.
func (v Value) Less(other Value) bool { return Compare(v, other) < 0 }

func cmpOrdered[T int32 | uint32 | float32](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpReal(a, b float32) int {
	an, bn := math.IsNaN(float64(a)), math.IsNaN(float64(b))
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	}
	return cmpOrdered(a, b)
}

// foldKey maps s to its case-folded form. A Caser is stateful, so each call
// builds its own.
func foldKey(s string) string {
	return cases.Fold().String(s)
}

// String renders v for logs and debugging.
func (v Value) String() string {
	switch v.Kind() {
	case KindInteger:
		return fmt.Sprintf("Integer(%d)", int32(v.num))
	case KindReal:
		return fmt.Sprintf("Real(%g)", math.Float32frombits(v.num))
	case KindForm:
		return fmt.Sprintf("Form(0x%08X)", v.num)
	case KindObject:
		return fmt.Sprintf("Object(%d)", v.num)
	case KindString:
		return fmt.Sprintf("String(%q)", v.str)
	}
	return "None"
}
