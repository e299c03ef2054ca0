package models

import (
	"encoding/json"
	"fmt"
)

// Priority orders images for review. Lower sorts first on every component.
//
// Class is the coarse bucket (0 = missing field code ... 4 = complete with
// high confidence). Tier ranks the collection site. Clean is false while
// the extracted data still has low-confidence or missing fields, and false
// sorts before true so problem images surface first within a bucket.
type Priority struct {
	Class int
	Tier  int
	Clean bool
}

// Compare returns -1, 0 or 1 ordering p against o.
func (p Priority) Compare(o Priority) int {
	if p.Class != o.Class {
		if p.Class < o.Class {
			return -1
		}
		return 1
	}
	if p.Tier != o.Tier {
		if p.Tier < o.Tier {
			return -1
		}
		return 1
	}
	if p.Clean != o.Clean {
		if !p.Clean {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether p sorts before o.
func (p Priority) Less(o Priority) bool {
	return p.Compare(o) < 0
}

const priorityParts = 3

// MarshalJSON encodes the priority as the [class, tier, clean] triple used
// in review snapshots.
func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]any{p.Class, p.Tier, p.Clean})
}

// UnmarshalJSON accepts the triple form, tolerating 0/1 in place of the
// boolean for snapshots written by older tooling.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("priority must be an array: %w", err)
	}
	if len(parts) != priorityParts {
		return fmt.Errorf("priority must have %d elements, got %d", priorityParts, len(parts))
	}
	if err := json.Unmarshal(parts[0], &p.Class); err != nil {
		return fmt.Errorf("priority class: %w", err)
	}
	if err := json.Unmarshal(parts[1], &p.Tier); err != nil {
		return fmt.Errorf("priority tier: %w", err)
	}
	if err := json.Unmarshal(parts[2], &p.Clean); err != nil {
		var n int
		if numErr := json.Unmarshal(parts[2], &n); numErr != nil {
			return fmt.Errorf("priority clean flag: %w", err)
		}
		p.Clean = n != 0
	}
	return nil
}
