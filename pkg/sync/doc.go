/*
Package sync owns the lifecycle of bidirectional sync sessions between host
paths and guest paths.

The Manager is the only component allowed to ask the external engine to
create or terminate sessions. Activation requires the caller to already
hold the host-path lock for the session's role; this ordering is what keeps
two VM instances from mirroring the same host directory at once. Teardown
is best effort with bounded retries, because a VM delete must never be
blocked by an unreachable engine.

The engine's reported session state is authoritative. A Poll maps the
engine's answer into the local state vocabulary and is never cached as
ground truth beyond that single result; unknown or unreachable engine
responses map to degraded so status always has a defined answer.
*/
package sync
