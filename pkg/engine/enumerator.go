package engine

import "fmt"

// NewEnumerator builds the enumerator for strategy. The punch engine checks
// through oracle and shrinks cores with minimizer, defaulting to ddmin when
// minimizer is nil. The exhaustive engine keeps its own memo table and calls
// the predicate wrapped by oracle directly.
func NewEnumerator[E any](strategy Strategy, oracle *Oracle[E], minimizer Minimizer[E], opts ...Option[E]) (CoreEnumerator[E], error) {
	if oracle == nil {
		return nil, NewConfigurationError("oracle is required", nil)
	}
	switch strategy {
	case StrategyPunch, "":
		if minimizer == nil {
			minimizer = NewDDMin(oracle)
		}
		return NewPunchEngine(oracle, minimizer, opts...), nil
	case StrategyExhaustive:
		return NewExhaustiveEngine(oracle.Predicate(), oracle.Ordering(), opts...), nil
	default:
		return nil, NewConfigurationError(fmt.Sprintf("unknown strategy: %s", strategy), nil).
			WithCode(ErrCodeUnknownStrategy)
	}
}

// ParseStrategy converts a strategy name, accepting the empty string as punch.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(name) {
	case StrategyPunch, "":
		return StrategyPunch, nil
	case StrategyExhaustive:
		return StrategyExhaustive, nil
	default:
		return "", NewConfigurationError(fmt.Sprintf("unknown strategy: %s", name), nil).
			WithCode(ErrCodeUnknownStrategy)
	}
}
