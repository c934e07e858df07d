package expr

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ObjectType represents the type of values in the expression language.
type ObjectType string

const (
	INTEGER_OBJ = "INTEGER"
	FLOAT_OBJ   = "FLOAT"
	BOOLEAN_OBJ = "BOOLEAN"
	STRING_OBJ  = "STRING"
	NULL_OBJ    = "NULL"
	ARRAY_OBJ   = "ARRAY"
	DICT_OBJ    = "DICTIONARY"
	ROWSET_OBJ  = "ROWSET"
)

// Object represents all values in the expression language.
type Object interface {
	Type() ObjectType
	Inspect() string
}

// Integer represents integer values
type Integer struct {
	Value int64
}

func (i *Integer) Inspect() string  { return strconv.FormatInt(i.Value, 10) }
func (i *Integer) Type() ObjectType { return INTEGER_OBJ }

// Float represents floating-point values
type Float struct {
	Value float64
}

func (f *Float) Inspect() string  { return fmt.Sprintf("%g", f.Value) }
func (f *Float) Type() ObjectType { return FLOAT_OBJ }

// Boolean represents boolean values
type Boolean struct {
	Value bool
}

func (b *Boolean) Inspect() string  { return strconv.FormatBool(b.Value) }
func (b *Boolean) Type() ObjectType { return BOOLEAN_OBJ }

// String represents string values
type String struct {
	Value string
}

func (s *String) Inspect() string  { return s.Value }
func (s *String) Type() ObjectType { return STRING_OBJ }

// Null represents the absent value. Undefined names evaluate to Null; Null
// coerces to "" in string position, 0 in arithmetic and false in conditions.
type Null struct{}

func (n *Null) Inspect() string  { return "" }
func (n *Null) Type() ObjectType { return NULL_OBJ }

// Array represents ordered sequences
type Array struct {
	Elements []Object
}

func (a *Array) Type() ObjectType { return ARRAY_OBJ }
func (a *Array) Inspect() string {
	elements := make([]string, 0, len(a.Elements))
	for _, e := range a.Elements {
		elements = append(elements, e.Inspect())
	}
	return "[" + strings.Join(elements, ", ") + "]"
}

// Dict represents string-keyed maps
type Dict struct {
	Pairs map[string]Object
}

func (d *Dict) Type() ObjectType { return DICT_OBJ }
func (d *Dict) Inspect() string {
	keys := make([]string, 0, len(d.Pairs))
	for key := range d.Pairs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, fmt.Sprintf("%s: %s", key, d.Pairs[key].Inspect()))
	}
	return "{" + strings.Join(pairs, ", ") + "}"
}

// RowSet represents the result of a query: ordered columns plus ordered rows.
type RowSet struct {
	Columns []string
	Rows    []*Dict
}

func (r *RowSet) Type() ObjectType { return ROWSET_OBJ }
func (r *RowSet) Inspect() string {
	return fmt.Sprintf("RowSet(%d rows)", len(r.Rows))
}

// Shared singletons. Booleans and Null are immutable so one instance each is
// enough.
var (
	NULL  = &Null{}
	TRUE  = &Boolean{Value: true}
	FALSE = &Boolean{Value: false}
)

// BoolOf returns the shared Boolean for a native bool.
func BoolOf(v bool) *Boolean {
	if v {
		return TRUE
	}
	return FALSE
}

// Truthy implements condition coercion: false, Null, 0, 0.0 and "" are
// false; everything else is true. Conditionals and logical operators all go
// through this one rule.
func Truthy(obj Object) bool {
	switch v := obj.(type) {
	case *Boolean:
		return v.Value
	case *Null:
		return false
	case *Integer:
		return v.Value != 0
	case *Float:
		return v.Value != 0
	case *String:
		return v.Value != ""
	case *Array:
		return len(v.Elements) > 0
	case *RowSet:
		return len(v.Rows) > 0
	default:
		return obj != nil
	}
}

// ToNative converts an Object to a plain Go value, for handing results to
// collaborators.
func ToNative(obj Object) any {
	switch v := obj.(type) {
	case *Integer:
		return v.Value
	case *Float:
		return v.Value
	case *Boolean:
		return v.Value
	case *String:
		return v.Value
	case *Null:
		return nil
	case *Array:
		out := make([]any, len(v.Elements))
		for i, e := range v.Elements {
			out[i] = ToNative(e)
		}
		return out
	case *Dict:
		out := make(map[string]any, len(v.Pairs))
		for k, e := range v.Pairs {
			out[k] = ToNative(e)
		}
		return out
	default:
		return obj.Inspect()
	}
}

// FromNative converts a plain Go value to an Object. Unknown types become
// their string form.
func FromNative(v any) Object {
	switch n := v.(type) {
	case nil:
		return NULL
	case bool:
		return BoolOf(n)
	case int:
		return &Integer{Value: int64(n)}
	case int32:
		return &Integer{Value: int64(n)}
	case int64:
		return &Integer{Value: n}
	case float32:
		return &Float{Value: float64(n)}
	case float64:
		return &Float{Value: n}
	case string:
		return &String{Value: n}
	case []byte:
		return &String{Value: string(n)}
	case []any:
		elems := make([]Object, len(n))
		for i, e := range n {
			elems[i] = FromNative(e)
		}
		return &Array{Elements: elems}
	case map[string]any:
		pairs := make(map[string]Object, len(n))
		for k, e := range n {
			pairs[k] = FromNative(e)
		}
		return &Dict{Pairs: pairs}
	case Object:
		return n
	default:
		return &String{Value: fmt.Sprint(v)}
	}
}

// Equals compares two objects for the == operator. Numeric types compare by
// value across int/float; everything else requires matching types.
func Equals(a, b Object) bool {
	if an, aok := asFloat(a); aok {
		if bn, bok := asFloat(b); bok {
			return an == bn
		}
		return false
	}
	switch av := a.(type) {
	case *String:
		bv, ok := b.(*String)
		return ok && av.Value == bv.Value
	case *Boolean:
		bv, ok := b.(*Boolean)
		return ok && av.Value == bv.Value
	case *Null:
		_, ok := b.(*Null)
		return ok
	default:
		return a == b
	}
}

// asFloat returns the numeric value of an Integer, Float or Null (0).
func asFloat(obj Object) (float64, bool) {
	switch v := obj.(type) {
	case *Integer:
		return float64(v.Value), true
	case *Float:
		return v.Value, true
	case *Null:
		return 0, true
	default:
		return 0, false
	}
}
