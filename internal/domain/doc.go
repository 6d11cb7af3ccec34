// Package domain defines the core domain types and interfaces.
//
// Comments, snapshots, wire messages and the StateStore contract live here together with the
// error taxonomy. It depends on nothing but the standard library; livestate, broadcast and the
// adapters all build on it.
package domain
