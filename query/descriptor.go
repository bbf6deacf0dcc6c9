// Package query describes read queries structurally so they can be fingerprinted.
//
// A Descriptor never executes anything. It is a value snapshot of what a query
// builder holds right before compilation: the structural clauses, the eager
// load plan, and, when available, the compiled statement text and bindings.
// Two descriptors that differ in any structural field are different queries
// even if their compiled statements happen to match.
package query

// Lock modes recognised by the descriptor.
const (
	LockNone   = ""
	LockUpdate = "update"
	LockShare  = "share"
)

// Boolean connectors for predicates.
const (
	BooleanAnd = "and"
	BooleanOr  = "or"
)

// Predicate types.
const (
	PredicateBasic  = "basic"
	PredicateIn     = "in"
	PredicateNull   = "null"
	PredicateNested = "nested"
	PredicateRaw    = "raw"
)

// Aggregate describes an aggregate function applied to the query.
type Aggregate struct {
	Function string   `json:"function"`
	Columns  []string `json:"columns"`
}

// Predicate is a single where/having/join condition.
type Predicate struct {
	Type     string      `json:"type"`
	Column   string      `json:"column,omitempty"`
	Operator string      `json:"operator,omitempty"`
	Value    any         `json:"value,omitempty"`
	Values   []any       `json:"values,omitempty"`
	Boolean  string      `json:"boolean"`
	Nested   []Predicate `json:"nested,omitempty"`
	Raw      string      `json:"raw,omitempty"`
}

// Join describes a joined source.
type Join struct {
	Type  string      `json:"type"`
	Table string      `json:"table"`
	On    []Predicate `json:"on,omitempty"`
}

// Order describes an ordering clause. Raw takes precedence over Column.
type Order struct {
	Column    string `json:"column,omitempty"`
	Direction string `json:"direction,omitempty"`
	Raw       string `json:"raw,omitempty"`
}

// Union is a query combined with the parent one.
type Union struct {
	Query *Descriptor `json:"query"`
	All   bool        `json:"all"`
}

// EagerLoad is one relation scheduled for eager loading.
type EagerLoad struct {
	Relation   string   `json:"relation"`
	Columns    []string `json:"columns,omitempty"`
	Constraint string   `json:"constraint,omitempty"`
}

// Descriptor is the structural description of a read query.
// Pointer fields distinguish "not set" (nil) from zero values.
type Descriptor struct {
	Entity      string      `json:"entity"`
	Method      string      `json:"method,omitempty"`
	Aggregate   *Aggregate  `json:"aggregate,omitempty"`
	Columns     []string    `json:"columns,omitempty"`
	Distinct    bool        `json:"distinct,omitempty"`
	From        string      `json:"from,omitempty"`
	Joins       []Join      `json:"joins,omitempty"`
	Wheres      []Predicate `json:"wheres,omitempty"`
	Groups      []string    `json:"groups,omitempty"`
	Havings     []Predicate `json:"havings,omitempty"`
	Orders      []Order     `json:"orders,omitempty"`
	Limit       *int        `json:"limit,omitempty"`
	Offset      *int        `json:"offset,omitempty"`
	Unions      []Union     `json:"unions,omitempty"`
	UnionLimit  *int        `json:"union_limit,omitempty"`
	UnionOffset *int        `json:"union_offset,omitempty"`
	UnionOrders []Order     `json:"union_orders,omitempty"`
	Lock        string      `json:"lock,omitempty"`
	EagerLoads  []EagerLoad `json:"eager_loads,omitempty"`
	Statement   string      `json:"statement,omitempty"`
	Bindings    []any       `json:"bindings,omitempty"`
}

// New starts a descriptor for the given entity type. From defaults to the entity.
func New(entity string) Descriptor {
	return Descriptor{Entity: entity, From: entity}
}
