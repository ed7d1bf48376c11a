// Package health composes liveness and readiness probes and serves them.
//
// Probes combine with [All] (AND) and [Any] (OR); [Named] prefixes a failure
// with the dependency it came from and [WithTimeout] bounds a slow check.
// [ShutdownGate] fails readiness as soon as shutdown begins so the load
// balancer stops routing new requests while in-flight ones drain.
package health
