package query

// The helpers below return modified copies so a Descriptor can be shared
// between goroutines once built.

// Select sets the selected columns.
func (d Descriptor) Select(columns ...string) Descriptor {
	d = d.Clone()
	d.Columns = append([]string(nil), columns...)
	return d
}

// Where appends an "and" basic predicate.
func (d Descriptor) Where(column, operator string, value any) Descriptor {
	return d.addWhere(Predicate{Type: PredicateBasic, Column: column, Operator: operator, Value: value, Boolean: BooleanAnd})
}

// OrWhere appends an "or" basic predicate.
func (d Descriptor) OrWhere(column, operator string, value any) Descriptor {
	return d.addWhere(Predicate{Type: PredicateBasic, Column: column, Operator: operator, Value: value, Boolean: BooleanOr})
}

// WhereIn appends an "and" membership predicate.
func (d Descriptor) WhereIn(column string, values ...any) Descriptor {
	return d.addWhere(Predicate{Type: PredicateIn, Column: column, Values: values, Boolean: BooleanAnd})
}

// WhereNull appends an "and" null check.
func (d Descriptor) WhereNull(column string) Descriptor {
	return d.addWhere(Predicate{Type: PredicateNull, Column: column, Boolean: BooleanAnd})
}

// WhereRaw appends a raw predicate.
func (d Descriptor) WhereRaw(sql string, bindings ...any) Descriptor {
	return d.addWhere(Predicate{Type: PredicateRaw, Raw: sql, Values: bindings, Boolean: BooleanAnd})
}

// Join appends a join.
func (d Descriptor) Join(kind, table string, on ...Predicate) Descriptor {
	d = d.Clone()
	d.Joins = append(d.Joins, Join{Type: kind, Table: table, On: on})
	return d
}

// GroupBy appends grouping columns.
func (d Descriptor) GroupBy(columns ...string) Descriptor {
	d = d.Clone()
	d.Groups = append(d.Groups, columns...)
	return d
}

// OrderBy appends an ordering clause.
func (d Descriptor) OrderBy(column, direction string) Descriptor {
	d = d.Clone()
	d.Orders = append(d.Orders, Order{Column: column, Direction: direction})
	return d
}

// WithLimit sets the limit.
func (d Descriptor) WithLimit(n int) Descriptor {
	d = d.Clone()
	d.Limit = &n
	return d
}

// WithOffset sets the offset.
func (d Descriptor) WithOffset(n int) Descriptor {
	d = d.Clone()
	d.Offset = &n
	return d
}

// WithAggregate sets the aggregate function.
func (d Descriptor) WithAggregate(function string, columns ...string) Descriptor {
	d = d.Clone()
	d.Aggregate = &Aggregate{Function: function, Columns: append([]string(nil), columns...)}
	return d
}

// With schedules relations for eager loading.
func (d Descriptor) With(relations ...string) Descriptor {
	d = d.Clone()
	for _, r := range relations {
		d.EagerLoads = append(d.EagerLoads, EagerLoad{Relation: r})
	}
	return d
}

// Compiled records the compiled statement text and its bindings.
func (d Descriptor) Compiled(statement string, bindings ...any) Descriptor {
	d = d.Clone()
	d.Statement = statement
	d.Bindings = append([]any(nil), bindings...)
	return d
}

func (d Descriptor) addWhere(p Predicate) Descriptor {
	d = d.Clone()
	d.Wheres = append(d.Wheres, p)
	return d
}

// Clone returns a deep copy of the slice and pointer fields. Values held in
// `any` fields are copied by assignment.
func (d Descriptor) Clone() Descriptor {
	out := d
	if d.Aggregate != nil {
		agg := *d.Aggregate
		agg.Columns = cloneSlice(d.Aggregate.Columns)
		out.Aggregate = &agg
	}
	out.Columns = cloneSlice(d.Columns)
	out.Groups = cloneSlice(d.Groups)
	out.Wheres = clonePredicates(d.Wheres)
	out.Havings = clonePredicates(d.Havings)
	out.Orders = cloneSlice(d.Orders)
	out.UnionOrders = cloneSlice(d.UnionOrders)
	out.Limit = cloneInt(d.Limit)
	out.Offset = cloneInt(d.Offset)
	out.UnionLimit = cloneInt(d.UnionLimit)
	out.UnionOffset = cloneInt(d.UnionOffset)
	if d.Joins != nil {
		out.Joins = make([]Join, len(d.Joins))
		for i, j := range d.Joins {
			j.On = clonePredicates(j.On)
			out.Joins[i] = j
		}
	}
	if d.Unions != nil {
		out.Unions = make([]Union, len(d.Unions))
		for i, u := range d.Unions {
			if u.Query != nil {
				q := u.Query.Clone()
				u.Query = &q
			}
			out.Unions[i] = u
		}
	}
	if d.EagerLoads != nil {
		out.EagerLoads = make([]EagerLoad, len(d.EagerLoads))
		for i, e := range d.EagerLoads {
			e.Columns = cloneSlice(e.Columns)
			out.EagerLoads[i] = e
		}
	}
	out.Bindings = cloneSlice(d.Bindings)
	return out
}

// cloneSlice copies in, keeping nil and empty distinct: both fingerprint
// differently.
func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func clonePredicates(in []Predicate) []Predicate {
	if in == nil {
		return nil
	}
	out := make([]Predicate, len(in))
	for i, p := range in {
		p.Values = cloneSlice(p.Values)
		p.Nested = clonePredicates(p.Nested)
		out[i] = p
	}
	return out
}
