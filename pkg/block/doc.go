/*
Package block implements the storage node's on-disk block engine: the
physical block file layout, the per-logical-block hashed file index with
freelist, and the write/read/unlink/stat/compact lifecycle described for
C1 in the system design.

# Layout

A logical block is one or more chained physical block files sharing a
logic_block_id: exactly one main block plus zero or more extension
blocks, linked by BlockPrefix.Prev/NextPhysicBlockID. Each physical block
file starts with a BlockPrefix and a BlockInfo header, followed by a
payload area of concatenated {file header, raw bytes} records.

A side file holds the logical block's file index: a fixed bucket table
hashing file_id with xxhash, each bucket the head of a singly linked
chain through MetaInfo.NextMetaOffset, with a freelist of reclaimed slots
for reuse on insert. The index is the authority for where a file's bytes
live; the payload area is never scanned on the read path.

# Directories

Main physical blocks live under <data_dir>/blocks/, extensions under
<data_dir>/extend/, and indexes under <data_dir>/index/. Main blocks are
kept in that blocks/ subdirectory, not directly in <data_dir>/.

# Concurrency

Each Block serializes writes and guards compaction with its own
sync.RWMutex: reads take the read lock, writes and unlinks take it
exclusively only long enough to update the index and append/patch a
record, and compaction holds it for the whole rebuild so no write can
observe a half-rebuilt index.
*/
package block
