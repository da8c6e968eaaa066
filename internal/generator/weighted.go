package generator

// Weighted pairs a value with its selection weight.
type Weighted[T any] struct {
	Value  T
	Weight int
}

// PickWeighted walks the cumulative weights in declaration order and returns
// the first value whose cumulative weight reaches draw. Draws past the total
// return the last value.
func PickWeighted[T any](table []Weighted[T], draw int) T {
	cumulative := 0
	for _, entry := range table {
		cumulative += entry.Weight
		if draw <= cumulative {
			return entry.Value
		}
	}
	return table[len(table)-1].Value
}

// DrawWeighted draws uniformly in [1, total weight] and picks from table.
func DrawWeighted[T any](r Rand, table []Weighted[T]) T {
	total := 0
	for _, entry := range table {
		total += entry.Weight
	}
	return PickWeighted(table, Between(r, 1, total))
}
