// Package telnet implements the client side of the MUD telnet dialect.
//
// Protocol.Feed consumes bytes from the connection and produces hard lines
// (terminated by LF), soft lines (flushed by GA/EOR prompts) and GMCP
// payloads. Option negotiation goes through an explicit table from option
// code to OptionKind; codes outside the table are refused. Once MCCP v2 is
// agreed and the server opens the compressed stream, every following byte
// is inflated until the zlib stream ends.
package telnet
