package risk

import (
	"bytes"
	"encoding/json"
	"reflect"

	"tradevera/internal/validation"
)

// Nullable distinguishes an absent JSON field from an explicit null.
// Present is false when the field was omitted; Value is nil for null.
type Nullable[T any] struct {
	Present bool
	Value   *T
}

// Set returns a present, non-null value.
func Set[T any](v T) Nullable[T] {
	return Nullable[T]{Present: true, Value: &v}
}

// Null returns a present, null value.
func Null[T any]() Nullable[T] {
	return Nullable[T]{Present: true}
}

func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.Present = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	if n.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*n.Value)
}

// Patch is a partial settings update. Omitted fields keep their stored values.
type Patch struct {
	Enabled              *bool             `json:"enabled"`
	DailyMaxLoss         Nullable[float64] `json:"dailyMaxLoss" binding:"omitempty,gt=0"`
	MaxConsecutiveLosses Nullable[int]     `json:"maxConsecutiveLosses" binding:"omitempty,min=1,max=20"`
	CooldownMinutes      *int              `json:"cooldownMinutes" binding:"omitempty,min=1,max=600"`
}

func init() {
	validation.RegisterType(nullableValue[float64], Nullable[float64]{})
	validation.RegisterType(nullableValue[int], Nullable[int]{})
}

// nullableValue exposes the wrapped value to binding tags; null and absent skip them.
func nullableValue[T any](v reflect.Value) interface{} {
	n, ok := v.Interface().(Nullable[T])
	if !ok || n.Value == nil {
		return nil
	}
	return *n.Value
}

// Validate checks every supplied field against its binding tags.
func (p Patch) Validate() error {
	return validation.Struct(p)
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Enabled == nil && !p.DailyMaxLoss.Present && !p.MaxConsecutiveLosses.Present && p.CooldownMinutes == nil
}

// Apply mutates s with the supplied fields. Disabling always clears the lockout.
// It returns true when a lockout was cleared as a side effect.
func (p Patch) Apply(s *Settings) bool {
	if p.Enabled != nil {
		s.Enabled = *p.Enabled
	}
	if p.DailyMaxLoss.Present {
		s.DailyMaxLoss = copyPtr(p.DailyMaxLoss.Value)
	}
	if p.MaxConsecutiveLosses.Present {
		s.MaxConsecutiveLosses = copyPtr(p.MaxConsecutiveLosses.Value)
	}
	if p.CooldownMinutes != nil {
		s.CooldownMinutes = *p.CooldownMinutes
	}

	if p.Enabled != nil && !*p.Enabled {
		cleared := s.HasLockout()
		s.ClearLockout()
		return cleared
	}
	return false
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
