package utils

import (
	"encoding/json"
	"strings"
)

// NullableString distinguishes an absent field from an explicit null in a
// PATCH body: absent leaves the column alone, null clears it.
type NullableString struct {
	Set   bool
	Value *string
}

func (n *NullableString) UnmarshalJSON(data []byte) error {
	n.Set = true
	if string(data) == "null" {
		n.Value = nil
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

func (n NullableString) MarshalJSON() ([]byte, error) {
	if n.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*n.Value)
}

// Trimmed returns the value with surrounding space removed; blank becomes nil.
func (n NullableString) Trimmed() *string {
	if n.Value == nil {
		return nil
	}
	v := strings.TrimSpace(*n.Value)
	if v == "" {
		return nil
	}
	return &v
}
