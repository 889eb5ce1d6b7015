// Package display renders metalines on a terminal.
package display

import (
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/muesli/termenv"

	"mudlink/internal/colour"
	"mudlink/internal/metaline"
)

// Console writes lines for a set of channels to a terminal, in true colour
// where the terminal supports it. It is used from the session loop only.
type Console struct {
	w        io.Writer
	out      *termenv.Output
	channels []string
	palette  *colour.Palette
	log      *slog.Logger

	fore, back colour.Colour
	wrote      bool
	closed     bool
}

type Options struct {
	// Channels defaults to ["main"].
	Channels []string
	// Profile overrides terminal detection.
	Profile *termenv.Profile
	Palette *colour.Palette
	Logger  *slog.Logger
}

func NewConsole(w io.Writer, opts Options) *Console {
	if len(opts.Channels) == 0 {
		opts.Channels = []string{"main"}
	}
	if opts.Palette == nil {
		opts.Palette = colour.Default
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	var out *termenv.Output
	if opts.Profile != nil {
		out = termenv.NewOutput(w, termenv.WithProfile(*opts.Profile))
	} else {
		out = termenv.NewOutput(w)
	}
	return &Console{
		w:        w,
		out:      out,
		channels: slices.Clone(opts.Channels),
		palette:  opts.Palette,
		log:      opts.Logger,
		fore:     opts.Palette.DefaultFore(),
		back:     opts.Palette.DefaultBack(),
	}
}

// Shows reports whether a line for channels reaches this console.
func (c *Console) Shows(channels []string) bool {
	for _, ch := range channels {
		if slices.Contains(c.channels, ch) {
			return true
		}
	}
	return false
}

func (c *Console) MetalineReceived(ml *metaline.Metaline, channels []string) {
	if c.closed || !c.Shows(channels) {
		return
	}
	runs, fore, back := ml.Runs(c.fore, c.back)
	c.fore, c.back = fore, back

	var b strings.Builder
	for _, r := range runs {
		style := c.out.String().
			Foreground(c.out.Color(r.Fore.Hex())).
			Background(c.out.Color(r.Back.Hex()))
		// Newlines go out unstyled so the background does not bleed.
		for i, part := range strings.Split(r.Text, "\n") {
			if i > 0 {
				b.WriteByte('\n')
			}
			switch {
			case part == "":
			case c.out.Profile == termenv.Ascii:
				b.WriteString(part)
			default:
				b.WriteString(style.Styled(part))
			}
		}
	}
	c.write(b.String())
}

func (c *Console) ConnectionMade() {}

func (c *Console) ConnectionLost() {}

// Close ends the last line.
func (c *Console) Close() {
	if c.closed {
		return
	}
	if c.wrote {
		c.write("\n")
	}
	c.closed = true
}

func (c *Console) write(s string) {
	if s == "" {
		return
	}
	if _, err := io.WriteString(c.w, s); err != nil {
		c.log.Warn("console write failed", "err", err)
		return
	}
	c.wrote = true
}
