/*
Package client is a Go client library over the TFS gRPC surfaces: it
resolves a file's block through the coordinator's CoordinatorService and
then reads/writes that block's bytes directly against the resolved
storage node's DataNodeService, the same two-hop path spec §4.2
describes for any caller.

# Usage

	c, err := client.NewClient("coordinator:7900")
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	name, err := c.Put(ctx, []byte("hello"), false)
	if err != nil {
		log.Fatal(err)
	}

	data, err := c.Get(ctx, name, false)

# Retries

Put/Get/Stat/Remove/etc. each retry through withRetry, backing off
between attempts. Only the kinds the coordinator expects a caller to
retry are retried: Busy, NotLeader, Network; StaleVersion, CrcError, and
NotFound surface immediately since retrying them cannot help (spec §7's
propagation policy).

# Scope

This client implements the subset of tfstool's command set addressable
purely through the coordinator and storage-node core: put, get, rm
(Remove), urm (Undelete), hide, unhide, stat, statblk, listblock. The
thin client/FD table/session-pool surface tfstool's cd/pwd/cfi/batch
commands would need is out of scope (see spec §1's Non-goals); cmd/tfstool
stubs those instead of routing them through this package.
*/
package client
