// Package health models health verdicts and the probes behind them.
//
// A [Report] is the JSON body answered on the public health path: a status
// plus optional per-component checks. [Static] produces the bare
// {"status":"healthy"} verdict; [Checker] runs named [Check]s (app,
// database) and turns any failure, including a panic, into an unhealthy
// report with the error text recorded against the component.
//
// [Probe]s feed the ops listener's /-/healthy and /-/ready endpoints and can
// be combined with [All] and [Any]. [ShutdownGate] fails readiness during
// drain so load balancers stop routing before the listener closes.
package health
