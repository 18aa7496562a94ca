package feed

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON encodes the pair as a two-element array: ["token", weight].
func (t TokenWeight) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{t.Token, t.Weight})
}

// UnmarshalJSON decodes a ["token", weight] pair.
func (t *TokenWeight) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("token weight: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("token weight: expected 2 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &t.Token); err != nil {
		return fmt.Errorf("token weight: token: %w", err)
	}
	if err := json.Unmarshal(raw[1], &t.Weight); err != nil {
		return fmt.Errorf("token weight: weight: %w", err)
	}
	return nil
}
