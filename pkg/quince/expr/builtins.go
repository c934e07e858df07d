package expr

import (
	"bytes"
	"math"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/goodsign/monday"
	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"golang.org/x/net/html"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/quincelang/quince/pkg/quince/errors"
)

// BuiltinFunction is the implementation of one expression builtin.
type BuiltinFunction func(args ...Object) (Object, error)

// Builtin wraps a builtin function for the fixed call table.
type Builtin struct {
	Fn BuiltinFunction
}

// builtins is the fixed table of callable functions. Expressions can call
// nothing else; user-defined functions are a statement-level feature and are
// deliberately unreachable from the sandboxed expression language.
var builtins = map[string]*Builtin{
	"len":          {Fn: builtinLen},
	"upper":        {Fn: stringFn("upper", strings.ToUpper)},
	"lower":        {Fn: stringFn("lower", strings.ToLower)},
	"trim":         {Fn: stringFn("trim", strings.TrimSpace)},
	"contains":     {Fn: builtinContains},
	"split":        {Fn: builtinSplit},
	"join":         {Fn: builtinJoin},
	"replace":      {Fn: builtinReplace},
	"abs":          {Fn: builtinAbs},
	"min":          {Fn: builtinMin},
	"max":          {Fn: builtinMax},
	"sum":          {Fn: builtinSum},
	"floor":        {Fn: builtinFloor},
	"ceil":         {Fn: builtinCeil},
	"round":        {Fn: builtinRound},
	"range":        {Fn: builtinRange},
	"markdown":     {Fn: builtinMarkdown},
	"plainText":    {Fn: builtinPlainText},
	"date":         {Fn: builtinDate},
	"formatDate":   {Fn: builtinFormatDate},
	"formatNumber": {Fn: builtinFormatNumber},
	"currency":     {Fn: builtinCurrency},
	"uuid":         {Fn: builtinUUID},
	"now":          {Fn: builtinNow},
	"toString":     {Fn: builtinToString},
}

// Builtins lists the available builtin names, for completion and docs.
func Builtins() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	return names
}

func arity(name string, args []Object, want int) error {
	if len(args) != want {
		return errors.NewEval(name, "%s() takes %d argument(s), got %d", name, want, len(args))
	}
	return nil
}

func wantString(name string, arg Object) (string, error) {
	if s, ok := arg.(*String); ok {
		return s.Value, nil
	}
	if _, ok := arg.(*Null); ok {
		return "", nil
	}
	return "", errors.NewEval(name, "%s() wants a string, got %s", name, arg.Type())
}

func stringFn(name string, fn func(string) string) BuiltinFunction {
	return func(args ...Object) (Object, error) {
		if err := arity(name, args, 1); err != nil {
			return nil, err
		}
		s, err := wantString(name, args[0])
		if err != nil {
			return nil, err
		}
		return &String{Value: fn(s)}, nil
	}
}

func builtinLen(args ...Object) (Object, error) {
	if err := arity("len", args, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case *String:
		return &Integer{Value: int64(len([]rune(v.Value)))}, nil
	case *Array:
		return &Integer{Value: int64(len(v.Elements))}, nil
	case *Dict:
		return &Integer{Value: int64(len(v.Pairs))}, nil
	case *RowSet:
		return &Integer{Value: int64(len(v.Rows))}, nil
	case *Null:
		return &Integer{Value: 0}, nil
	default:
		return nil, errors.NewEval("len", "len() not supported for %s", args[0].Type())
	}
}

func builtinContains(args ...Object) (Object, error) {
	if err := arity("contains", args, 2); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case *String:
		needle, err := wantString("contains", args[1])
		if err != nil {
			return nil, err
		}
		return BoolOf(strings.Contains(v.Value, needle)), nil
	case *Array:
		for _, e := range v.Elements {
			if Equals(e, args[1]) {
				return TRUE, nil
			}
		}
		return FALSE, nil
	default:
		return nil, errors.NewEval("contains", "contains() not supported for %s", args[0].Type())
	}
}

func builtinSplit(args ...Object) (Object, error) {
	if err := arity("split", args, 2); err != nil {
		return nil, err
	}
	s, err := wantString("split", args[0])
	if err != nil {
		return nil, err
	}
	sep, err := wantString("split", args[1])
	if err != nil {
		return nil, err
	}
	parts := strings.Split(s, sep)
	elements := make([]Object, len(parts))
	for i, p := range parts {
		elements[i] = &String{Value: p}
	}
	return &Array{Elements: elements}, nil
}

func builtinJoin(args ...Object) (Object, error) {
	if err := arity("join", args, 2); err != nil {
		return nil, err
	}
	arr, ok := args[0].(*Array)
	if !ok {
		return nil, errors.NewEval("join", "join() wants an array, got %s", args[0].Type())
	}
	sep, err := wantString("join", args[1])
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(arr.Elements))
	for i, e := range arr.Elements {
		parts[i] = Stringify(e)
	}
	return &String{Value: strings.Join(parts, sep)}, nil
}

func builtinReplace(args ...Object) (Object, error) {
	if err := arity("replace", args, 3); err != nil {
		return nil, err
	}
	s, err := wantString("replace", args[0])
	if err != nil {
		return nil, err
	}
	old, err := wantString("replace", args[1])
	if err != nil {
		return nil, err
	}
	new, err := wantString("replace", args[2])
	if err != nil {
		return nil, err
	}
	return &String{Value: strings.ReplaceAll(s, old, new)}, nil
}

func builtinAbs(args ...Object) (Object, error) {
	if err := arity("abs", args, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case *Integer:
		if v.Value < 0 {
			return &Integer{Value: -v.Value}, nil
		}
		return v, nil
	case *Float:
		return &Float{Value: math.Abs(v.Value)}, nil
	default:
		return nil, errors.NewEval("abs", "abs() wants a number, got %s", args[0].Type())
	}
}

func numericFold(name string, args []Object, fold func(acc, n float64) float64, initial float64) (Object, error) {
	values := args
	if len(args) == 1 {
		if arr, ok := args[0].(*Array); ok {
			values = arr.Elements
		}
	}
	if len(values) == 0 {
		return &Integer{Value: 0}, nil
	}
	allInt := true
	acc := initial
	for i, a := range values {
		n, ok := asFloat(a)
		if !ok {
			return nil, errors.NewEval(name, "%s() wants numbers, got %s", name, a.Type())
		}
		if _, isInt := a.(*Integer); !isInt {
			if _, isNull := a.(*Null); !isNull {
				allInt = false
			}
		}
		if i == 0 && math.IsNaN(initial) {
			acc = n
			continue
		}
		acc = fold(acc, n)
	}
	if allInt && acc == math.Trunc(acc) {
		return &Integer{Value: int64(acc)}, nil
	}
	return &Float{Value: acc}, nil
}

func builtinMin(args ...Object) (Object, error) {
	return numericFold("min", args, math.Min, math.NaN())
}

func builtinMax(args ...Object) (Object, error) {
	return numericFold("max", args, math.Max, math.NaN())
}

func builtinSum(args ...Object) (Object, error) {
	return numericFold("sum", args, func(acc, n float64) float64 { return acc + n }, 0)
}

func builtinFloor(args ...Object) (Object, error) {
	if err := arity("floor", args, 1); err != nil {
		return nil, err
	}
	n, ok := asFloat(args[0])
	if !ok {
		return nil, errors.NewEval("floor", "floor() wants a number, got %s", args[0].Type())
	}
	return &Integer{Value: int64(math.Floor(n))}, nil
}

func builtinCeil(args ...Object) (Object, error) {
	if err := arity("ceil", args, 1); err != nil {
		return nil, err
	}
	n, ok := asFloat(args[0])
	if !ok {
		return nil, errors.NewEval("ceil", "ceil() wants a number, got %s", args[0].Type())
	}
	return &Integer{Value: int64(math.Ceil(n))}, nil
}

func builtinRound(args ...Object) (Object, error) {
	if err := arity("round", args, 1); err != nil {
		return nil, err
	}
	n, ok := asFloat(args[0])
	if !ok {
		return nil, errors.NewEval("round", "round() wants a number, got %s", args[0].Type())
	}
	return &Integer{Value: int64(math.Round(n))}, nil
}

// builtinRange returns [from..to] inclusive, matching loop range semantics.
func builtinRange(args ...Object) (Object, error) {
	if err := arity("range", args, 2); err != nil {
		return nil, err
	}
	from, ok := args[0].(*Integer)
	if !ok {
		return nil, errors.NewEval("range", "range() wants integers, got %s", args[0].Type())
	}
	to, ok := args[1].(*Integer)
	if !ok {
		return nil, errors.NewEval("range", "range() wants integers, got %s", args[1].Type())
	}
	var elements []Object
	for i := from.Value; i <= to.Value; i++ {
		elements = append(elements, &Integer{Value: i})
	}
	return &Array{Elements: elements}, nil
}

func builtinMarkdown(args ...Object) (Object, error) {
	if err := arity("markdown", args, 1); err != nil {
		return nil, err
	}
	src, err := wantString("markdown", args[0])
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(src), &buf); err != nil {
		return nil, errors.NewEval("markdown", "markdown conversion failed: %s", err)
	}
	return &String{Value: buf.String()}, nil
}

// builtinPlainText strips markup from an HTML fragment, keeping text nodes.
func builtinPlainText(args ...Object) (Object, error) {
	if err := arity("plainText", args, 1); err != nil {
		return nil, err
	}
	src, err := wantString("plainText", args[0])
	if err != nil {
		return nil, err
	}
	var out strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(src))
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			return &String{Value: strings.TrimSpace(out.String())}, nil
		}
		if tt == html.TextToken {
			out.Write(tokenizer.Text())
		}
	}
}

func builtinDate(args ...Object) (Object, error) {
	if err := arity("date", args, 1); err != nil {
		return nil, err
	}
	s, err := wantString("date", args[0])
	if err != nil {
		return nil, err
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return nil, errors.NewEval("date", "cannot parse date %q: %s", s, err)
	}
	return &String{Value: t.Format(time.RFC3339)}, nil
}

// builtinFormatDate formats an RFC3339 (or loosely parsed) date with a Go
// layout, optionally localized: formatDate(d, layout[, locale]).
func builtinFormatDate(args ...Object) (Object, error) {
	if len(args) != 2 && len(args) != 3 {
		return nil, errors.NewEval("formatDate", "formatDate() takes 2 or 3 arguments, got %d", len(args))
	}
	s, err := wantString("formatDate", args[0])
	if err != nil {
		return nil, err
	}
	layout, err := wantString("formatDate", args[1])
	if err != nil {
		return nil, err
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return nil, errors.NewEval("formatDate", "cannot parse date %q: %s", s, err)
	}
	if len(args) == 3 {
		loc, err := wantString("formatDate", args[2])
		if err != nil {
			return nil, err
		}
		return &String{Value: monday.Format(t, layout, monday.Locale(loc))}, nil
	}
	return &String{Value: t.Format(layout)}, nil
}

// builtinFormatNumber renders a number with locale-aware grouping:
// formatNumber(n[, locale]).
func builtinFormatNumber(args ...Object) (Object, error) {
	if len(args) != 1 && len(args) != 2 {
		return nil, errors.NewEval("formatNumber", "formatNumber() takes 1 or 2 arguments, got %d", len(args))
	}
	n, ok := asFloat(args[0])
	if !ok {
		return nil, errors.NewEval("formatNumber", "formatNumber() wants a number, got %s", args[0].Type())
	}
	tag := language.English
	if len(args) == 2 {
		loc, err := wantString("formatNumber", args[1])
		if err != nil {
			return nil, err
		}
		parsed, err := language.Parse(loc)
		if err != nil {
			return nil, errors.NewEval("formatNumber", "unknown locale %q", loc)
		}
		tag = parsed
	}
	p := message.NewPrinter(tag)
	if _, isInt := args[0].(*Integer); isInt {
		return &String{Value: p.Sprint(number.Decimal(int64(n)))}, nil
	}
	return &String{Value: p.Sprint(number.Decimal(n))}, nil
}

// builtinCurrency renders an amount with its currency symbol:
// currency(n, "USD"[, locale]).
func builtinCurrency(args ...Object) (Object, error) {
	if len(args) != 2 && len(args) != 3 {
		return nil, errors.NewEval("currency", "currency() takes 2 or 3 arguments, got %d", len(args))
	}
	n, ok := asFloat(args[0])
	if !ok {
		return nil, errors.NewEval("currency", "currency() wants a number, got %s", args[0].Type())
	}
	code, err := wantString("currency", args[1])
	if err != nil {
		return nil, err
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, errors.NewEval("currency", "unknown currency %q", code)
	}
	tag := language.English
	if len(args) == 3 {
		loc, lerr := wantString("currency", args[2])
		if lerr != nil {
			return nil, lerr
		}
		parsed, perr := language.Parse(loc)
		if perr != nil {
			return nil, errors.NewEval("currency", "unknown locale %q", loc)
		}
		tag = parsed
	}
	p := message.NewPrinter(tag)
	return &String{Value: p.Sprint(currency.Symbol(unit.Amount(n)))}, nil
}

func builtinUUID(args ...Object) (Object, error) {
	if err := arity("uuid", args, 0); err != nil {
		return nil, err
	}
	return &String{Value: uuid.NewString()}, nil
}

func builtinNow(args ...Object) (Object, error) {
	if err := arity("now", args, 0); err != nil {
		return nil, err
	}
	return &String{Value: time.Now().UTC().Format(time.RFC3339)}, nil
}

func builtinToString(args ...Object) (Object, error) {
	if err := arity("toString", args, 1); err != nil {
		return nil, err
	}
	return &String{Value: Stringify(args[0])}, nil
}
