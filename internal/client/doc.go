// Package client owns the network connection to the server.
//
// The Engine dials, reads on its own goroutine and writes through a send
// worker; everything it decodes is posted to the session loop, where the
// telnet protocol and the root realm run.
package client
