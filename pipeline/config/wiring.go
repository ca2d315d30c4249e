package config

import (
	"fmt"

	"github.com/meridian-quant/flowcore/eventbus"
)

// =============================================================================
// WIRING TABLE
// =============================================================================

// Route declares one subscription: which component listens to which
// signal. The table is validated at startup so a typo in a signal name
// fails the process instead of silently dropping traffic.
type Route struct {
	Signal string `yaml:"signal"`
	Target string `yaml:"target"`
}

// WiringConfig is the declarative subscription table plus the set of
// retired signal names the bus drops on sight.
type WiringConfig struct {
	Routes []Route `yaml:"routes"`
	// Deprecated maps a retired signal name to the name that replaced it.
	Deprecated map[string]string `yaml:"deprecated"`
}

// Component names the wiring table may target.
const (
	TargetTickInitiator     = "tick_initiator"
	TargetNewsInitiator     = "news_initiator"
	TargetScheduleInitiator = "schedule_initiator"
	TargetCommandInitiator  = "command_initiator"
	TargetEntrySpecialist   = "entry_specialist"
	TargetSizeSpecialist    = "size_specialist"
	TargetExitSpecialist    = "exit_specialist"
	TargetIntentSpecialist  = "intent_specialist"
	TargetPhaseCoordinator  = "phase_coordinator"
	TargetDispatcher        = "dispatcher"
	TargetCoordinator       = "coordinator"
)

var knownTargets = map[string]bool{
	TargetTickInitiator:     true,
	TargetNewsInitiator:     true,
	TargetScheduleInitiator: true,
	TargetCommandInitiator:  true,
	TargetEntrySpecialist:   true,
	TargetSizeSpecialist:    true,
	TargetExitSpecialist:    true,
	TargetIntentSpecialist:  true,
	TargetPhaseCoordinator:  true,
	TargetDispatcher:        true,
	TargetCoordinator:       true,
}

var knownSignals = map[string]bool{
	eventbus.SignalStimulusBroadcast: true,
	eventbus.SignalFlowStartTick:     true,
	eventbus.SignalFlowStartNews:     true,
	eventbus.SignalFlowStartSchedule: true,
	eventbus.SignalFlowStartCommand:  true,
	eventbus.SignalDirectiveCreated:  true,
	eventbus.SignalPartialPlanEntry:  true,
	eventbus.SignalPartialPlanSize:   true,
	eventbus.SignalPartialPlanExit:   true,
	eventbus.SignalPlanningRequest:   true,
	eventbus.SignalIntentCreated:     true,
	eventbus.SignalDirectiveReady:    true,
	eventbus.SignalFlowCompleted:     true,
}

// DefaultWiring is the standard pipeline topology.
func DefaultWiring() WiringConfig {
	return WiringConfig{
		Routes: []Route{
			{Signal: eventbus.SignalStimulusBroadcast, Target: TargetTickInitiator},
			{Signal: eventbus.SignalStimulusBroadcast, Target: TargetNewsInitiator},
			{Signal: eventbus.SignalStimulusBroadcast, Target: TargetScheduleInitiator},
			{Signal: eventbus.SignalStimulusBroadcast, Target: TargetCommandInitiator},
			{Signal: eventbus.SignalDirectiveCreated, Target: TargetEntrySpecialist},
			{Signal: eventbus.SignalDirectiveCreated, Target: TargetSizeSpecialist},
			{Signal: eventbus.SignalDirectiveCreated, Target: TargetExitSpecialist},
			{Signal: eventbus.SignalDirectiveCreated, Target: TargetPhaseCoordinator},
			{Signal: eventbus.SignalPartialPlanEntry, Target: TargetPhaseCoordinator},
			{Signal: eventbus.SignalPartialPlanSize, Target: TargetPhaseCoordinator},
			{Signal: eventbus.SignalPartialPlanExit, Target: TargetPhaseCoordinator},
			{Signal: eventbus.SignalPlanningRequest, Target: TargetIntentSpecialist},
			{Signal: eventbus.SignalIntentCreated, Target: TargetPhaseCoordinator},
			{Signal: eventbus.SignalDirectiveReady, Target: TargetDispatcher},
			{Signal: eventbus.SignalFlowCompleted, Target: TargetCoordinator},
			{Signal: eventbus.SignalFlowCompleted, Target: TargetPhaseCoordinator},
		},
		Deprecated: map[string]string{},
	}
}

// Validate rejects routes naming unknown signals or targets, duplicate
// routes, and deprecated entries that collide with live routes.
func (w WiringConfig) Validate() error {
	if len(w.Routes) == 0 {
		return fmt.Errorf("wiring table has no routes")
	}

	seen := map[Route]bool{}
	for _, route := range w.Routes {
		if !knownSignals[route.Signal] {
			return fmt.Errorf("wiring route for target %q: %w",
				route.Target, eventbus.NewUnknownSignalError(route.Signal))
		}
		if !knownTargets[route.Target] {
			return fmt.Errorf("wiring route for %q names unknown target %q", route.Signal, route.Target)
		}
		if seen[route] {
			return fmt.Errorf("duplicate wiring route: %s -> %s", route.Signal, route.Target)
		}
		seen[route] = true
	}

	routed := map[string]bool{}
	for _, route := range w.Routes {
		routed[route.Signal] = true
	}
	for retired, replacement := range w.Deprecated {
		if routed[retired] {
			return fmt.Errorf("signal %q is both routed and deprecated", retired)
		}
		if replacement != "" && !knownSignals[replacement] {
			return fmt.Errorf("deprecated signal %q replacement: %w",
				retired, eventbus.NewUnknownSignalError(replacement))
		}
	}
	return nil
}

// Targets returns the set of component names the table wires, letting the
// wiring step skip components the operator removed.
func (w WiringConfig) Targets() map[string]bool {
	targets := map[string]bool{}
	for _, route := range w.Routes {
		targets[route.Target] = true
	}
	return targets
}

// RoutesFor lists the signals routed to one target.
func (w WiringConfig) RoutesFor(target string) []string {
	var signals []string
	for _, route := range w.Routes {
		if route.Target == target {
			signals = append(signals, route.Signal)
		}
	}
	return signals
}
