// Package recipe holds the record type shared between the store, the gossip
// protocol and the command bridge.
package recipe

import (
	"encoding/json"
	"fmt"
)

// Visibility controls whether a record is shared with other peers.
type Visibility uint8

const (
	Private Visibility = iota
	Public
)

func (v Visibility) String() string {
	if v == Public {
		return "public"
	}
	return "private"
}

// MarshalJSON encodes the visibility as the boolean "public" flag used by the
// backing file and the gossip wire format.
func (v Visibility) MarshalJSON() ([]byte, error) {
	return json.Marshal(v == Public)
}

func (v *Visibility) UnmarshalJSON(data []byte) error {
	var public bool
	if err := json.Unmarshal(data, &public); err != nil {
		return fmt.Errorf("recipe: visibility: %w", err)
	}
	if public {
		*v = Public
	} else {
		*v = Private
	}
	return nil
}

// Record is a single recipe. ID is unique within one store.
type Record struct {
	ID           uint64     `json:"id"`
	Name         string     `json:"name"`
	Ingredients  string     `json:"ingredients"`
	Instructions string     `json:"instructions"`
	Visibility   Visibility `json:"public"`
}

// IsPublic reports whether the record may be shared with peers.
func (r Record) IsPublic() bool {
	return r.Visibility == Public
}

// Clone returns a copy of records that never aliases the input.
// A nil input yields an empty, non-nil slice so callers encode it as [].
func Clone(records []Record) []Record {
	out := make([]Record, len(records))
	copy(out, records)
	return out
}
