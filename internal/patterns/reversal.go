package patterns

// isReversalBearish: prev swept above the base high but closed back inside the base range
func isReversalBearish(t Triple) bool {
	return t.Prev.High.GreaterThan(t.Base.High) && t.insideBaseRange(t.Prev.Close)
}

// isReversalBullish: prev swept below the base low but closed back inside the base range
func isReversalBullish(t Triple) bool {
	return t.Prev.Low.LessThan(t.Base.Low) && t.insideBaseRange(t.Prev.Close)
}
