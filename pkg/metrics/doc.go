/*
Package metrics defines the coordinator and storage-node Prometheus
instrumentation, registered via promauto at package init the way the
teacher's pkg/metrics does: heartbeat admission pressure, plan counts by
kind/state, oplog replication lag, per-block size accounting, HA role,
and compaction duration. Exposed over HTTP with promhttp.Handler by each
daemon's cmd entrypoint.
*/
package metrics
