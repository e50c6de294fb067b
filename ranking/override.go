package ranking

// Override is the manual-override state of one symbol. The zero value is
// Auto: activation is controlled by ranking.
type Override struct {
	forced bool
	active bool
}

// Auto returns the ranking-controlled state.
func Auto() Override {
	return Override{}
}

// Forced returns an operator override pinning activation to active.
func Forced(active bool) Override {
	return Override{forced: true, active: active}
}

// FromFlags rebuilds an override from its persisted columns.
func FromFlags(overridden, active bool) Override {
	if !overridden {
		return Auto()
	}
	return Forced(active)
}

// IsForced reports whether the operator pinned activation.
func (o Override) IsForced() bool {
	return o.forced
}

// Active returns the pinned activation. It is false for Auto.
func (o Override) Active() bool {
	return o.forced && o.active
}

func (o Override) String() string {
	switch {
	case !o.forced:
		return "auto"
	case o.active:
		return "forced_active"
	default:
		return "forced_inactive"
	}
}
