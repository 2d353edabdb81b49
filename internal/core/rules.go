package core

// NewDefaultRulesEngine registers the invariant rules enforced on every
// transaction commit: lot balance bounds, lifecycle transitions, and mass
// conservation of completed reactions.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(LotBalanceRule{})
	engine.Register(LifecycleTransitionRule{})
	engine.Register(MassConservationRule{})
	return engine
}
