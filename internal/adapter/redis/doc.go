// Package redis implements the shared state store on Redis.
//
// StateStore backs the hub counters with INCR/DECR/GET/SET and the comment log with a
// capped list (LPUSH + LTRIM in one MULTI/EXEC). NewClient installs hooks for metrics
// and a fail-fast circuit breaker around every command.
package redis
