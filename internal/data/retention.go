package data

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/strata-backup/strata/internal/errors"
	"github.com/strata-backup/strata/internal/ids"
)

// RetentionPolicyKind selects how Keep decides which snapshots survive
// a retention pass. Enforcement (actually deleting the pruned
// snapshots' data) is out of this module's core scope (spec §9 Open
// Question); RetentionPolicy exists here purely as the value type the
// repository Config carries, the same way the teacher and the mapache
// source both model a retention policy even where GC itself lives in a
// separate, uninstrumented subsystem.
type RetentionPolicyKind int

const (
	// KeepAll retains every snapshot.
	KeepAll RetentionPolicyKind = iota
	// KeepLastN retains the N most recent snapshots.
	KeepLastN
	// KeepForDuration retains snapshots newer than a calendar-aware
	// Duration.
	KeepForDuration
)

// RetentionPolicy is a pure value type: Keep is a deterministic
// function of a snapshot list and a reference time, with no side
// effects and no repository access.
type RetentionPolicy struct {
	Kind     RetentionPolicyKind
	N        int
	Duration Duration
}

// Keep returns the ids of the snapshots in snapshots that the policy
// would retain, evaluated against now.
func (p RetentionPolicy) Keep(snapshots []Snapshot, now time.Time) []ids.ID {
	switch p.Kind {
	case KeepLastN:
		return keepLastN(snapshots, p.N)
	case KeepForDuration:
		return keepForDuration(snapshots, p.Duration, now)
	default:
		return keepAll(snapshots)
	}
}

func keepAll(snapshots []Snapshot) []ids.ID {
	out := make([]ids.ID, len(snapshots))
	for i, s := range snapshots {
		out[i] = s.ID
	}
	return out
}

func keepLastN(snapshots []Snapshot, n int) []ids.ID {
	sorted := append([]Snapshot(nil), snapshots...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.After(sorted[j].Time) })
	if n > len(sorted) {
		n = len(sorted)
	}
	out := make([]ids.ID, n)
	for i := 0; i < n; i++ {
		out[i] = sorted[i].ID
	}
	return out
}

func keepForDuration(snapshots []Snapshot, d Duration, now time.Time) []ids.ID {
	cutoff := now.AddDate(-d.Years, -d.Months, -d.Days).Add(-time.Hour * time.Duration(d.Hours))
	var out []ids.ID
	for _, s := range snapshots {
		if s.Time.After(cutoff) {
			out = append(out, s.ID)
		}
	}
	return out
}

// Duration is a calendar-aware duration ("2y3m15d4h"), distinct from
// time.Duration because months and years don't have a fixed length.
// Grounded on the teacher's internal/data/duration.go.
type Duration struct {
	Hours, Days, Months, Years int
}

// String renders d in the same compact form ParseDuration accepts.
func (d Duration) String() string {
	var s strings.Builder
	if d.Years != 0 {
		s.WriteString(strconv.Itoa(d.Years) + "y")
	}
	if d.Months != 0 {
		s.WriteString(strconv.Itoa(d.Months) + "m")
	}
	if d.Days != 0 {
		s.WriteString(strconv.Itoa(d.Days) + "d")
	}
	if d.Hours != 0 {
		s.WriteString(strconv.Itoa(d.Hours) + "h")
	}
	return s.String()
}

func nextNumber(input string) (num int, rest string, err error) {
	if len(input) == 0 {
		return 0, "", nil
	}

	negative := false
	if input[0] == '-' {
		negative = true
		input = input[1:]
	}

	var n string
	for i, r := range input {
		if r < '0' || r > '9' {
			rest = input[i:]
			break
		}
		n += string(r)
	}

	if len(n) == 0 {
		return 0, "", errors.New("no number found")
	}

	num, err = strconv.Atoi(n)
	if err != nil {
		return 0, "", errors.Wrap(err, "parse duration number")
	}
	if negative {
		num = -num
	}
	return num, rest, nil
}

// ParseDuration parses a string of the form "6y5m234d37h" into a
// Duration.
func ParseDuration(s string) (Duration, error) {
	var d Duration
	s = strings.TrimSpace(s)

	for s != "" {
		num, rest, err := nextNumber(s)
		if err != nil {
			return Duration{}, err
		}
		if len(rest) == 0 {
			return Duration{}, errors.Errorf("no unit found after number %d", num)
		}

		switch rest[0] {
		case 'y':
			d.Years = num
		case 'm':
			d.Months = num
		case 'd':
			d.Days = num
		case 'h':
			d.Hours = num
		default:
			return Duration{}, errors.Errorf("invalid unit %q found after number %d", rest[0], num)
		}
		s = rest[1:]
	}

	return d, nil
}
