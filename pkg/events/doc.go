/*
Package events provides an in-memory pub/sub broker used to notify
interested components (metrics, CLI watchers, audit logging) of block,
server, plan and HA role lifecycle changes without coupling the
registry, plan engine or HA controller to any particular subscriber.

Publish never waits on a subscriber: a slow or absent subscriber just
misses events rather than stalling the coordinator. Publish itself waits
only while the broker's 100-event queue is full, or until Stop is
called. This is fire-and-forget monitoring
plumbing, not a channel any correctness invariant depends on.
*/
package events
