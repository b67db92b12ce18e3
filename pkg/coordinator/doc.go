/*
Package coordinator assembles C3-C7 into the coordinator daemon (tfsns):
registry.Registry, heartbeat.Manager, plan.Engine, the oplog queue/sender
and ha.Controller, wired behind an rpc.CoordinatorServer implementation.

# Background loops

A Coordinator runs three periodic tasks against a single ticker each:
planTick scans the registry for replication/compaction pressure and
dispatches admissible plans to storage nodes via their DataNodeClient;
haTick runs the VIP-arbitration and peer-heartbeat state machine;
gcTick sweeps the registry for servers and blocks safe to forget.

# Compaction candidates

plan.Engine.Tick takes its compaction candidate list from outside the
registry, since BlockCollect does not carry deleted/total size. The
coordinator recomputes that ratio itself by querying each known block's
primary for a fresh BlockInfoMessage before every plan tick, rather than
extending the heartbeat wire format.

# Active/standby

Only one coordinator processes client and storage-node traffic as
"active"; both run the full server loop and every RPC handler remains
valid on either side, since a VIP failover can promote either instance
at any point. The sync flag gating oplog replication is driven entirely
by ha.Controller; SyncOplog's handler accepts entries and tracks the
highest seq received, in memory only, without replaying them into the local
registry - a deliberate scope cut, since OplogEntry records file-level
mutations rather than the registry's replica-set state.
*/
package coordinator
