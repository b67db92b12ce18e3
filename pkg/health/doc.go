/*
Package health provides out-of-band liveness probes used alongside TFS's
own RPC heartbeats: a consecutive-failure/success counter (Status) driven
by pluggable Checkers (HTTP, TCP).

A storage node waiting for its coordinator to come up doesn't want to
wait out a full gRPC dial timeout on every retry; a TCPChecker against
the same address gives a cheap, fast-failing signal to poll before
bothering the heavier client.

# Checkers

	checker := health.NewTCPChecker("10.0.0.1:7900")
	result := checker.Check(ctx)

HTTPChecker is used the same way against a daemon's own /healthz
endpoint, for operators or external monitors that don't speak TFS's
gRPC protocol at all.

# Status

Status accumulates Results from repeated checks into a single
Healthy/Unhealthy verdict, requiring Config.Retries consecutive
failures before flipping - the same flap-dampening a single missed
coordinator heartbeat already gets inside ha.Controller, applied here
to a caller with no access to that internal state.
*/
package health
