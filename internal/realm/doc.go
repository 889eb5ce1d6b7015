// Package realm is the matching engine and session orchestrator.
//
// A Root owns the trigger, alias and GMCP handler lists, the loaded module
// set and the output pipeline. Each incoming line and each outgoing command
// is processed inside a Context pushed on the root's context stack; writes
// made by handlers are queued on the context and flushed after the line
// itself has been displayed (triggers) or sent (aliases). Nested sends push
// further contexts, so output follows the nesting of the calls.
//
// Everything in this package runs on one goroutine (see package loop).
package realm
