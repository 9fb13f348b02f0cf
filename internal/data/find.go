package data

import (
	"sort"

	"github.com/strata-backup/strata/internal/errors"
	"github.com/strata-backup/strata/internal/ids"
)

// FindSnapshot resolves a snapshot reference (§6.3 grammar: a full hex
// id, an unambiguous hex prefix of at least 8 characters, or the literal
// "latest") against a list of candidate snapshots.
//
// It takes the candidate list rather than a live repository so that
// this package never needs to import the repository that constructs
// Snapshot values in the first place.
func FindSnapshot(snapshots []Snapshot, ref string) (*Snapshot, error) {
	if len(snapshots) == 0 {
		return nil, errors.New("no snapshots available")
	}

	if ref == "latest" {
		latest := &snapshots[0]
		for i := range snapshots {
			if snapshots[i].Time.After(latest.Time) {
				latest = &snapshots[i]
			}
		}
		return latest, nil
	}

	if id, err := ids.ParseID(ref); err == nil {
		for i := range snapshots {
			if snapshots[i].ID == id {
				return &snapshots[i], nil
			}
		}
		return nil, errors.Errorf("no snapshot with id %q", ref)
	}

	candidates := make(ids.IDs, len(snapshots))
	for i, s := range snapshots {
		candidates[i] = s.ID
	}
	id, err := ids.ShortID(candidates, ref)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve snapshot reference %q", ref)
	}
	for i := range snapshots {
		if snapshots[i].ID == id {
			return &snapshots[i], nil
		}
	}
	return nil, errors.Errorf("no snapshot with id prefix %q", ref)
}

// SortedByTime returns a copy of snapshots ordered oldest-first, the
// order `snapshots` listings and retention decisions are reported in.
func SortedByTime(snapshots []Snapshot) []Snapshot {
	out := append([]Snapshot(nil), snapshots...)
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}
