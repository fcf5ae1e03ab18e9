package patterns

// isContinuationBullish: prev and today both closed above the base high
func isContinuationBullish(t Triple) bool {
	return t.Prev.Close.GreaterThan(t.Base.High) && t.Today.Close.GreaterThan(t.Base.High)
}

// isContinuationBearish: prev and today both closed below the base low
func isContinuationBearish(t Triple) bool {
	return t.Prev.Close.LessThan(t.Base.Low) && t.Today.Close.LessThan(t.Base.Low)
}
