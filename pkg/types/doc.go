/*
Package types defines the core data structures shared across TFS.

This package holds the domain model that every other package reads and
mutates: physical and logical block headers, the coordinator's in-memory
registry entries, plans, oplog entries, and the filename codec clients use
to address a file. Nothing in this package talks to disk or the network;
it is pure data plus the small amount of logic (filename encode/decode,
scoring helpers) that is cheap to keep next to the types it operates on.

# Core Types

On-disk block layout:
  - BlockPrefix: the 12-byte chain header (logic id, prev/next physical id)
  - BlockInfo: the mutable block header (version, file count, live/deleted size)
  - FileHeader: per-file record header inside a block's payload area
  - MetaInfo: one index entry, chained by NextMetaOffset within a bucket

Coordinator registry:
  - BlockCollect: replica set and version/dirty state for one logical block
  - ServerCollect: liveness, capacity and hold-set for one storage node

Background work and replication:
  - Plan: a replicate/compact/move/delete unit of work bound to a block
  - OplogEntry: one write-ahead record streamed from active to standby

HA state:
  - NsRole / NsStatus / NsSyncDataFlag: the active/standby handshake

# Filename Encoding

Filename.Encode and DecodeFilename implement the 18-byte identifier
clients see as an opaque base64-URL string: a leading byte (FilenameSmall
or FilenameLarge), the block id and file id it resolves to, and a suffix
hash plus parity trailer for cheap validation before a lookup is even
attempted.

# Ownership

BlockCollect and ServerCollect are owned exclusively by the coordinator's
registry (pkg/registry); every other package that needs one receives a
copy or an id and re-resolves through the registry rather than holding a
long-lived reference, so no component outlives a block or server's
lifecycle by accident.

# See Also

  - pkg/registry for the concurrent map these types live inside
  - pkg/block for the physical layout BlockPrefix/FileHeader/MetaInfo describe
  - pkg/plan for how Plan values are generated and tracked
  - pkg/oplog for how OplogEntry values are framed and persisted
*/
package types
