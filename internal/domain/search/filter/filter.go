package filter

import (
	"fmt"
	"time"
)

// Metadata fields a query may filter on.
const (
	FieldDate   = "date"
	FieldRole   = "role"
	FieldSource = "source"
)

// DateLayout is the calendar-day format stored in the date field.
const DateLayout = "2006-01-02"

// MaxDays bounds the date window so a typo cannot expand into a huge tag set.
const MaxDays = 3660

// Kind discriminates predicate nodes.
type Kind int

const (
	// KindEq matches a single value.
	KindEq Kind = iota + 1
	// KindIn matches any value of a set.
	KindIn
	// KindAnd requires every child predicate.
	KindAnd
)

func (k Kind) String() string {
	switch k {
	case KindEq:
		return "eq"
	case KindIn:
		return "in"
	case KindAnd:
		return "and"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Predicate is a metadata filter tree understood by the engine.
type Predicate struct {
	kind     Kind
	field    string
	values   []string
	children []Predicate
}

// Eq matches documents whose field equals value.
func Eq(field, value string) Predicate {
	return Predicate{kind: KindEq, field: field, values: []string{value}}
}

// In matches documents whose field is one of values.
func In(field string, values ...string) Predicate {
	return Predicate{kind: KindIn, field: field, values: append([]string(nil), values...)}
}

// And matches documents satisfying every child.
func And(children ...Predicate) Predicate {
	return Predicate{kind: KindAnd, children: append([]Predicate(nil), children...)}
}

// Kind returns the node type.
func (p Predicate) Kind() Kind { return p.kind }

// Field returns the metadata field for Eq and In nodes.
func (p Predicate) Field() string { return p.field }

// Value returns the single value of an Eq node.
func (p Predicate) Value() string {
	if len(p.values) == 0 {
		return ""
	}
	return p.values[0]
}

// Values returns the value set of an In node.
func (p Predicate) Values() []string { return p.values }

// Children returns the operands of an And node.
func (p Predicate) Children() []Predicate { return p.children }

// Match evaluates p against stored metadata. Missing fields never match.
func (p Predicate) Match(fields map[string]string) bool {
	switch p.kind {
	case KindEq, KindIn:
		v, ok := fields[p.field]
		if !ok {
			return false
		}
		for _, want := range p.values {
			if v == want {
				return true
			}
		}
		return false
	case KindAnd:
		for _, c := range p.children {
			if !c.Match(fields) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func (p Predicate) String() string {
	switch p.kind {
	case KindEq:
		return fmt.Sprintf("%s=%q", p.field, p.Value())
	case KindIn:
		return fmt.Sprintf("%s in %q", p.field, p.values)
	case KindAnd:
		return fmt.Sprintf("and%v", p.children)
	default:
		return "<none>"
	}
}

// Query is the user-facing filter: every part is optional.
type Query struct {
	Days   *int
	Role   *string
	Source *string
}

// Compile turns q into a Predicate evaluated against anchor's calendar day.
// The bool is false when q imposes no constraint. A single constraint is
// returned as is; two or more are joined with And.
//
// Days <= 0 is treated as absent. Empty role and source strings are absent too.
func Compile(q Query, anchor time.Time) (Predicate, bool) {
	var preds []Predicate

	if q.Days != nil && *q.Days > 0 {
		preds = append(preds, In(FieldDate, DayWindow(*q.Days, anchor)...))
	}
	if q.Role != nil && *q.Role != "" {
		preds = append(preds, Eq(FieldRole, *q.Role))
	}
	if q.Source != nil && *q.Source != "" {
		preds = append(preds, Eq(FieldSource, *q.Source))
	}

	switch len(preds) {
	case 0:
		return Predicate{}, false
	case 1:
		return preds[0], true
	default:
		return And(preds...), true
	}
}

// DayWindow returns n calendar days ending at anchor's local day, newest first.
// n is capped at MaxDays.
func DayWindow(n int, anchor time.Time) []string {
	if n > MaxDays {
		n = MaxDays
	}
	days := make([]string, 0, n)
	y, m, d := anchor.Date()
	for i := range n {
		// Date normalizes day underflow and stays on calendar days across DST shifts.
		days = append(days, time.Date(y, m, d-i, 12, 0, 0, 0, anchor.Location()).Format(DateLayout))
	}
	return days
}
