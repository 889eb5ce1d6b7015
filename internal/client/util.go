package client

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MakeRunID returns an identifier for one process run.
func MakeRunID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Sprintf("run-%d", time.Now().UTC().UnixNano())
	}
	return "run-" + id.String()
}
