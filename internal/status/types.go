package status

// Data is the template model for the status page.
type Data struct {
	Version    string
	RunID      string
	ServerTime string

	Host      string
	Connected bool
	// Since is when the connection opened, or closed if it is down.
	Since string

	LinesIn  int
	LinesOut int
	GMCPIn   int

	State    []KV
	Packages []string
}

type KV struct {
	Key   string
	Value string
}
