package data

import (
	"time"

	"github.com/strata-backup/strata/internal/ids"
)

// Snapshot is a named, timestamped root reference bundle (§3): it points
// at the Tree representing the synthetic root that unifies all of a
// backup run's source paths.
type Snapshot struct {
	ID          ids.ID    `json:"-"`
	Parent      *ids.ID   `json:"parent,omitempty"`
	Time        time.Time `json:"time"`
	Paths       []string  `json:"paths"`
	Tree        ids.ID    `json:"tree"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}
