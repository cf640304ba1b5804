package repo

// Translate validates every condition and then dispatches each one to v in
// order. When any condition is malformed nothing is dispatched.
func Translate(v Visitor, conds ...Condition) error {
	if err := ValidateConditions(conds...); err != nil {
		return err
	}
	for _, c := range conds {
		if err := c.Accept(v); err != nil {
			return err
		}
	}
	return nil
}

// ValidateConditions returns the first usage error found in conds.
func ValidateConditions(conds ...Condition) error {
	for _, c := range conds {
		if c == nil {
			return invalidf("nil condition")
		}
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}
