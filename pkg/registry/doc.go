/*
Package registry is the coordinator's in-memory authority over the
cluster: two keyed containers, block_id -> BlockCollect and
server_id -> ServerCollect, protected by a single read-write lock as
described for C3.

# Ownership

Registry exclusively owns BlockCollect and ServerCollect values. Other
components (pkg/heartbeat, pkg/plan, pkg/rpc) never hold a long-lived
pointer to one; they call into Registry by id and get back a copy,
matching the "other components receive handles" re-architecture note:
no cyclic references between blocks and servers.

# Dead-time removal

A dead ServerCollect is not deleted synchronously. Sweep only removes it
once now is past DeadTime plus the configured grace interval, the same
GCObject dead_time_ model the original used instead of reference
counting. A BlockCollect with zero replicas is removed the same way,
additionally gated on having no plan in flight (checked by the caller,
since Registry does not know about pkg/plan's state).

# Placement

placement.go implements the scorer from the Block/Server Registry
design: capacity-remaining ratio, block-count-below-average, rack
diversity, and load-below-average, in that ranking order, with a
deterministic tie-break on server id.
*/
package registry
