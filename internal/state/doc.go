// Package state holds concurrency-safe snapshots of session data for
// readers outside the loop.
package state
