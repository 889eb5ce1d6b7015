// Package nvt decodes a received line of network virtual terminal text into
// a metaline: it strips control characters, applies backspace erasure, and
// lifts ANSI SGR colour codes out of the text into run-length colour tracks.
package nvt
