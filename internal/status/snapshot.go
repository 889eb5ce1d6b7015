package status

import (
	"sort"
	"time"

	"mudlink/internal/state"
)

// FromSnapshot fills the session part of Data.
func FromSnapshot(s state.Snapshot, packages []string) Data {
	d := Data{
		Host:      s.Host,
		Connected: s.Connected,
		LinesIn:   s.LinesIn,
		LinesOut:  s.LinesOut,
		GMCPIn:    s.GMCPIn,
		Packages:  packages,
	}
	switch {
	case s.Connected && !s.ConnectedAt.IsZero():
		d.Since = s.ConnectedAt.UTC().Format(time.RFC3339)
	case !s.Connected && !s.ClosedAt.IsZero():
		d.Since = s.ClosedAt.UTC().Format(time.RFC3339)
	}
	for k, v := range s.Values {
		d.State = append(d.State, KV{Key: k, Value: v})
	}
	sort.Slice(d.State, func(i, j int) bool { return d.State[i].Key < d.State[j].Key })
	return d
}
