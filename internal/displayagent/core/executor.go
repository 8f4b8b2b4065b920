package core

import "context"

// Executor performs the physical display switch.
//
// It is the agent's only outbound port to the operating system. Implementations
// handle and log their own failures; the agent never inspects the outcome and a
// failing switch never counts as a broker failure.
type Executor interface {
	// SwitchToExternal makes the external display the active one.
	SwitchToExternal(ctx context.Context)

	// SwitchToInternal makes the built-in display the active one.
	SwitchToInternal(ctx context.Context)
}
