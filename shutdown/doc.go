// Package shutdown coordinates graceful shutdown of a process built around
// admission controllers.
//
// Handlers register with a phase. Lower phases run first and handlers in
// the same phase run concurrently:
//
//	coord := shutdown.NewCoordinator(shutdown.DefaultConfig())
//	ctx = coord.HandleSignals(ctx)
//
//	coord.RegisterFunc("producers", shutdown.PhaseIntake, stopProducers)
//	coord.Register("controller", shutdown.PhaseDrain, controller)
//	coord.Register("tracing", shutdown.PhaseTelemetry, provider)
//
//	<-coord.Done()
//
// Every handler shares the shutdown context, so a slow drain eats into the
// time left for later phases.
package shutdown
