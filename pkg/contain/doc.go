// Package contain simulates initial attack on a wildland fire with the
// Fried and Fried containment model.
//
// # Overview
//
// A reported fire grows as an ellipse whose head advances at a (possibly
// diurnal) spread rate. Suppression resources arrive on a schedule and build
// holdable line along one flank; the other flank is assumed to mirror it.
// Each step the model advances the free-burning head by a small distance and
// integrates the angle u of the point of line construction, seen from the
// fire origin, until the line closes on the head or rear of the fire or the
// resources can no longer keep pace.
//
// The package is organized bottom-up:
//
//   - Resource: one scheduled asset with arrival, shift length, production and cost
//   - Force: an ordered set of resources answering side-effect-free queries
//   - Flank: the per-flank state machine advanced by Step and rewound by Reset
//   - Simulator: the multi-pass driver with retry and step-size refinement
//
// # Units
//
// Lengths are chains, rates chains per hour, areas acres and times minutes
// since the fire was reported. Resource production is the full rate for both
// flanks; each flank receives half of it.
//
// # Outcomes
//
// A run always ends in one of the terminal statuses (contained, overrun,
// exhausted, overflow, size_limit_exceeded, time_limit_exceeded). These are
// results, not errors. The only errors are invalid inputs, chiefly an attack
// time that is negative or the NoArrival sentinel of an empty force, and
// context cancellation between passes.
//
// # Example Usage
//
//	force := &contain.Force{}
//	_ = force.AddResource("Engine 1", 0, 60, 480, contain.SideLeft, 500, 120)
//
//	cfg := contain.DefaultConfig()
//	cfg.Report = contain.Report{Size: 20, Rate: 20, LWRatio: 1}
//
//	res, err := contain.Simulate(ctx, cfg, force)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Status, res.Size, res.Cost)
//
// # Observability
//
// Simulators accept an Observer through WithObserver. It receives a
// StepEvent after every step and a PassEvent when a pass is resolved. The
// default observer discards everything.
package contain
