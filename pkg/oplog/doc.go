/*
Package oplog implements the coordinator's write-ahead operation log (C6):
every mutating registry operation is appended to a durable, rotating
queue of segment files and streamed to the standby coordinator so it can
stay warm without participating in a consensus protocol.

# Durability

Each entry is framed with a 4-byte length prefix and a trailing CRC32,
the same discipline pkg/block uses for its on-disk file records. Appends
fsync before the call returns by default; SyncMode can relax that for a
throughput-over-durability configuration. Segments roll once they reach
segment_max_bytes.

# Ordering

seq is assigned strictly monotonically by the Queue and never skips — a
segment boundary never introduces a gap. The Sender streams entries in
seq order and only recycles a segment once every entry in it is at or
below LastAckedSeq and outside retain_margin.

# Sync flag

sync_oplog_flag is modeled as an explicit state machine (Flag, in
syncflag.go) rather than a shared mutable int guarded by an ad-hoc
condvar: transitions are named methods, and a waiter blocks on a channel
that the state machine closes on its next transition instead of being
woken by a broadcast.
*/
package oplog
