// Package ids defines the object identifier type shared by every layer of
// the repository: a 32-byte cryptographic digest that names the plaintext
// contents of a blob (§3 of the design spec).
package ids

import (
	"encoding/hex"
	"sort"
	"strings"

	"github.com/strata-backup/strata/internal/errors"
)

// Length is the size in bytes of an ID.
const Length = 32

// ID is a 256-bit object identifier, rendered as 64 hex characters for
// display. Equal plaintext always produces an equal ID; that equality is
// the sole basis of deduplication.
type ID [Length]byte

// Null is the zero-value ID, used as a sentinel for "no content".
var Null ID

// IsNull reports whether id is the zero ID.
func (id ID) IsNull() bool {
	return id == Null
}

// String renders the ID as 64 lowercase hex characters.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// MarshalJSON implements json.Marshaler, emitting the hex string form.
func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.Errorf("invalid ID JSON: %q", data)
	}
	parsed, err := ParseID(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseID parses a 64-character hex string into an ID.
func ParseID(s string) (ID, error) {
	var id ID
	if len(s) != Length*2 {
		return id, errors.Errorf("invalid ID length %d, want %d", len(s), Length*2)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, errors.Wrap(err, "ParseID")
	}
	copy(id[:], b)
	return id, nil
}

// IDs is a sortable, searchable slice of ID.
type IDs []ID

func (ids IDs) Len() int           { return len(ids) }
func (ids IDs) Less(i, j int) bool { return strings.Compare(string(ids[i][:]), string(ids[j][:])) < 0 }
func (ids IDs) Swap(i, j int)      { ids[i], ids[j] = ids[j], ids[i] }

// Sort sorts ids in place.
func (ids IDs) Sort() { sort.Sort(ids) }

// Contains reports whether id is present in ids.
func (ids IDs) Contains(id ID) bool {
	for _, other := range ids {
		if other == id {
			return true
		}
	}
	return false
}

// Equal reports whether a and b contain the same IDs in the same order.
func (a IDs) Equal(b IDs) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ShortID resolves an unambiguous hex prefix (at least 8 characters)
// against candidates, as used by the snapshot reference grammar (§6.3).
// It does not handle the literal "latest"; data.FindSnapshot resolves
// that itself before falling back to ShortID.
func ShortID(candidates IDs, prefix string) (ID, error) {
	if len(prefix) < 8 {
		return Null, errors.Errorf("prefix %q is too short, need at least 8 hex characters", prefix)
	}
	prefix = strings.ToLower(prefix)

	var match ID
	found := false
	for _, id := range candidates {
		if strings.HasPrefix(id.String(), prefix) {
			if found {
				return Null, errors.Errorf("prefix %q is ambiguous", prefix)
			}
			match = id
			found = true
		}
	}
	if !found {
		return Null, errors.Errorf("no match for prefix %q", prefix)
	}
	return match, nil
}
