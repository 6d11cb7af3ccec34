// Package broadcast implements the live hub: connection registry, fan-out and per-connection lifecycle.
//
// Every connection gets a Client with its own writer goroutine and a bounded send queue, so a slow
// peer never blocks a broadcast; a failed enqueue evicts the client. The Hub orders joins against
// broadcasts with a join barrier: the bootstrap snapshot is queued and the client is registered while
// no broadcast can run, so a client sees the state as of its join before any later event.
package broadcast
