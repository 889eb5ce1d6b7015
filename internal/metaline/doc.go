// Package metaline holds the structured display line: sanitized text, two
// run-length colour tracks, the line terminator kind and layout flags.
//
// All offsets are rune offsets into Text.
package metaline
