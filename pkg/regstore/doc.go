/*
Package regstore persists the coordinator's registry to a local BoltDB
file so that a restart does not start from an empty BlockCollect/
ServerCollect map.

# Why a separate persistence layer

pkg/registry is the runtime authority: its maps are guarded by a
read-write lock and are what every query and mutation actually reads. A
crash loses that in-memory state. BoltStore gives the registry a durable
backing copy, upserted on every mutation, so startup can repopulate the
in-memory maps before the first heartbeat arrives instead of waiting for
every storage node to re-report its block list from scratch.

# Layout

Two buckets: block_collects keyed by the big-endian encoding of
logic_block_id, and server_collects keyed by server id (ip:port). Values
are JSON, matching the registry's in-memory struct shapes field for
field so a snapshot can be unmarshaled directly into a BlockCollect or
ServerCollect.

# Consistency

This store is not transactional with the oplog (pkg/oplog) or with the
in-memory registry's lock. It is written after the registry has already
applied a mutation, on a best-effort basis. Neither this snapshot nor
the oplog keeps the standby coordinator's registry current: the standby
records the sequence numbers of the oplog entries it receives and does
not apply them to its registry.
*/
package regstore
