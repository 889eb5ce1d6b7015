// Package gmcp parses and builds Generic MUD Communication Protocol
// messages: a dotted package name optionally followed by a JSON document.
package gmcp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

var ErrMalformed = errors.New("malformed gmcp message")

// DefaultSupports is advertised in Core.Supports.Set.
var DefaultSupports = []string{
	"Char 1",
	"Char.Skills 1",
	"Char.Items 1",
	"Room 1",
	"Comm.Channel 1",
}

type Message struct {
	Package string
	// Raw is the JSON text after the package name; empty when absent.
	Raw  string
	Data gjson.Result
}

func Parse(payload []byte) (Message, error) {
	s := strings.TrimSpace(string(payload))
	name, body, _ := strings.Cut(s, " ")
	if name == "" {
		return Message{}, fmt.Errorf("%w: empty package", ErrMalformed)
	}
	body = strings.TrimSpace(body)
	if body != "" && !gjson.Valid(body) {
		return Message{}, fmt.Errorf("%w: %s: invalid json", ErrMalformed, name)
	}
	return Message{Package: name, Raw: body, Data: gjson.Parse(body)}, nil
}

// Encode renders a message for the wire.
func Encode(pkg, body string) []byte {
	if body == "" {
		return []byte(pkg)
	}
	return []byte(pkg + " " + body)
}

// Handshake builds the Core.Hello and Core.Supports.Set messages.
func Handshake(client, version string, supports []string) ([][]byte, error) {
	hello, err := sjson.Set("", "client", client)
	if err != nil {
		return nil, fmt.Errorf("core.hello: %w", err)
	}
	if hello, err = sjson.Set(hello, "version", version); err != nil {
		return nil, fmt.Errorf("core.hello: %w", err)
	}
	supp := "[]"
	for _, s := range supports {
		if supp, err = sjson.Set(supp, "-1", s); err != nil {
			return nil, fmt.Errorf("core.supports: %w", err)
		}
	}
	return [][]byte{
		Encode("Core.Hello", hello),
		Encode("Core.Supports.Set", supp),
	}, nil
}

// Format pretty-prints a JSON document for display.
func Format(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimRight(string(pretty.Pretty([]byte(raw))), "\n")
}
