/*
Package ha implements the coordinator's active/standby controller (C7):
role truth is derived from which instance currently holds a floating VIP,
the two peers exchange periodic heartbeats to detect failure, and a safe
mode window after every role transition gives storage nodes time to
re-report before the plan engine or registry resume destructive work.

# VIP arbitration

VipResolver abstracts "do I hold the VIP" behind one method so tests can
inject a fake instead of shelling out to keepalived. The transition rule
is deliberately asymmetric:

  - VIP not local, I am master -> demote unconditionally, cancel plans.
  - VIP local, I am slave -> promote only after polling the peer and
    confirming it is not still claiming master.

This asymmetry is carried over from the original design as-is (see
SPEC_FULL's Open Questions) rather than "fixed" into a symmetric rule;
the exact fencing guarantee it provides is not something this package
invents.

# Safe mode

Every role transition sets switch_time = now + safe_mode_time. Callers
query InSafeMode to gate plan emission and registry-driven deletion
until the window elapses.
*/
package ha
