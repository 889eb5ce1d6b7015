package telnet

import "fmt"

// Telnet command bytes.
const (
	SE   byte = 240
	NOP  byte = 241
	GA   byte = 249
	SB   byte = 250
	WILL byte = 251
	WONT byte = 252
	DO   byte = 253
	DONT byte = 254
	IAC  byte = 255

	// EOR marks end of record; servers that negotiate it use it like GA.
	EOR byte = 239
)

// Option codes the client knows about.
const (
	OptEcho      byte = 1
	OptCompress2 byte = 86
	OptGMCP      byte = 201
)

// OptionKind is the handler variant an option code maps to.
type OptionKind uint8

const (
	OptionReject OptionKind = iota
	OptionEcho
	OptionCompress
	OptionGMCP
)

func (k OptionKind) String() string {
	switch k {
	case OptionReject:
		return "reject"
	case OptionEcho:
		return "echo"
	case OptionCompress:
		return "mccp2"
	case OptionGMCP:
		return "gmcp"
	default:
		return fmt.Sprintf("option_kind(%d)", k)
	}
}

// OptionTable maps option codes to handler variants.
type OptionTable map[byte]OptionKind

// DefaultOptions is the table used when a Config does not supply one.
func DefaultOptions() OptionTable {
	return OptionTable{
		OptEcho:      OptionEcho,
		OptCompress2: OptionCompress,
		OptGMCP:      OptionGMCP,
	}
}

// Kind looks up code; unknown codes are OptionReject.
func (t OptionTable) Kind(code byte) OptionKind {
	if k, ok := t[code]; ok {
		return k
	}
	return OptionReject
}

func commandName(b byte) string {
	switch b {
	case WILL:
		return "WILL"
	case WONT:
		return "WONT"
	case DO:
		return "DO"
	case DONT:
		return "DONT"
	case SB:
		return "SB"
	case GA:
		return "GA"
	case EOR:
		return "EOR"
	default:
		return fmt.Sprintf("CMD(%d)", b)
	}
}
