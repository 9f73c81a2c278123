// Package tailsitter implements the transition supervisor of a tail-sitter
// VTOL: the MC / front-transition / fixed-wing / back-transition mode
// machine, the pitch and lateral schedulers, the altitude cascade with its
// aerodynamic thrust feed-forward, the sideslip yaw integrator, the
// fixed-wing identification manoeuvre and the actuator mixer.
//
// A Controller is driven by the host at 250 Hz through Update. It performs no
// I/O; parameters arrive through a ParamSource and mode edges are reported
// through a Logger and an AbortFunc.
package tailsitter
