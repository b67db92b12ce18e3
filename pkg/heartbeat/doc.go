/*
Package heartbeat ingests storage-node heartbeats for the coordinator
(C4): it updates ServerCollect liveness in pkg/registry, reconciles
reported block lists, and enforces the single back-pressure rule in the
whole system — an ordinary heartbeat is rejected with "busy" the instant
the admission bound is exhausted, without being queued at all.

# Admission rule

Dead-notice and block-list-report heartbeats bypass the bound
unconditionally, exactly the max_queue_size = 0 special case from the
original heart_manager: they are never rejected. Ordinary liveness
heartbeats take a slot from a bounded semaphore sized by
heartbeat_queue_size; when no slot is free, Submit returns
CodeStatusError immediately.

# Processing

A dead report marks the server dead in the registry and returns OK
unconditionally — the keepalive handler logs an error internally but
still acknowledges the sender, the same accept-and-forget behavior
noted as unclear-but-observed in the original. A block-list report is
reconciled against the registry; any block the registry does not assign
to this server comes back in the response as an id to expire.
*/
package heartbeat
