package dto

import (
	"encoding/json"
	"time"
)

// OptionalString distinguishes an absent JSON key from an explicit null.
// Set is true whenever the key was present; Value is nil for null.
type OptionalString struct {
	Set   bool
	Value *string
}

// UnmarshalJSON is only invoked when the key is present
func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// MarshalJSON renders the value or null
func (o OptionalString) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

// NewOptionalString builds a present value; pass nil for an explicit null
func NewOptionalString(v *string) OptionalString {
	return OptionalString{Set: true, Value: v}
}

// OptionalTime is the time.Time counterpart of OptionalString
type OptionalTime struct {
	Set   bool
	Value *time.Time
}

func (o *OptionalTime) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	o.Value = &t
	return nil
}

func (o OptionalTime) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}
