/*
Package plan implements the coordinator's plan engine (C5): it scans the
registry for replication and compaction pressure, synthesizes plans,
assigns them to source servers up to a per-server concurrency limit,
tracks deadlines, and validates completion reports.

# Architecture

Every plan_interval tick:

 1. Handle every plan whose deadline has passed: reschedule it with a
    fresh deadline while it is under the retry limit, otherwise free its
    slot.
 2. Scan the registry for under-replicated blocks; for each, if no plan
    is already active for that block and its primary has room under
    max_plans_per_server, synthesize a replicate plan.
 3. Scan the compaction candidates reported by storage nodes; for each,
    if no plan is active on that block, synthesize a compact plan.

# Invariants

At most one active plan exists per block at any time — the engine's
plan map is keyed by block id, so a second violation on the same block
is simply skipped until the first plan clears. Replicate and compact are
therefore automatically mutually exclusive on one block. A per-source
counter enforces max_plans_per_server across both kinds.

# Deadlines

Plans are ordered by deadline in a github.com/google/btree BTreeG so a
tick only has to walk the prefix of plans whose deadline has already
passed, rather than scanning every in-flight plan. A plan that times out
is rescheduled in place, keeping its id, with a fresh deadline and a
higher retry count; its third timeout frees it, and the next scan
re-emits a plan for the same violation if it still exists.
*/
package plan
