package risk

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradevera/internal/apperr"
)

func TestPatchDecodeAbsentVersusNull(t *testing.T) {
	var p Patch
	require.NoError(t, json.Unmarshal([]byte(`{"dailyMaxLoss":null,"cooldownMinutes":30}`), &p))

	assert.True(t, p.DailyMaxLoss.Present)
	assert.Nil(t, p.DailyMaxLoss.Value)
	assert.False(t, p.MaxConsecutiveLosses.Present)
	assert.Nil(t, p.Enabled)
	require.NotNil(t, p.CooldownMinutes)
	assert.Equal(t, 30, *p.CooldownMinutes)
	assert.False(t, p.Empty())

	var empty Patch
	require.NoError(t, json.Unmarshal([]byte(`{}`), &empty))
	assert.True(t, empty.Empty())
}

func TestPatchValidate(t *testing.T) {
	tests := []struct {
		name   string
		patch  Patch
		fields []string
	}{
		{"valid", Patch{DailyMaxLoss: Set(250.0), MaxConsecutiveLosses: Set(3), CooldownMinutes: ptr(90)}, nil},
		{"nulls are valid", Patch{DailyMaxLoss: Null[float64](), MaxConsecutiveLosses: Null[int]()}, nil},
		{"zero loss", Patch{DailyMaxLoss: Set(0.0)}, []string{"dailyMaxLoss"}},
		{"negative loss", Patch{DailyMaxLoss: Set(-10.0)}, []string{"dailyMaxLoss"}},
		{"streak too long", Patch{MaxConsecutiveLosses: Set(21)}, []string{"maxConsecutiveLosses"}},
		{"streak zero", Patch{MaxConsecutiveLosses: Set(0)}, []string{"maxConsecutiveLosses"}},
		{"cooldown bounds", Patch{CooldownMinutes: ptr(601)}, []string{"cooldownMinutes"}},
		{"all bad", Patch{DailyMaxLoss: Set(-1.0), MaxConsecutiveLosses: Set(99), CooldownMinutes: ptr(0)},
			[]string{"dailyMaxLoss", "maxConsecutiveLosses", "cooldownMinutes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.patch.Validate()
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			var verr *apperr.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Len(t, verr.Fields, len(tt.fields))
			for _, f := range tt.fields {
				assert.Contains(t, verr.Fields, f)
			}
		})
	}
}

func TestPatchApply(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s := NewDefaultSettings("u", 45, now)
	s.DailyMaxLoss = ptr(500.0)
	s.ApplyLockout(ReasonDailyMaxLoss, now.Add(time.Hour))

	cleared := Patch{MaxConsecutiveLosses: Set(4)}.Apply(s)
	assert.False(t, cleared)
	assert.Equal(t, 500.0, *s.DailyMaxLoss)
	assert.Equal(t, 4, *s.MaxConsecutiveLosses)
	assert.NotNil(t, s.LockoutUntil, "changing thresholds keeps the lockout")

	cleared = Patch{DailyMaxLoss: Null[float64](), Enabled: ptr(false)}.Apply(s)
	assert.True(t, cleared)
	assert.False(t, s.Enabled)
	assert.Nil(t, s.DailyMaxLoss)
	assert.Nil(t, s.LockoutUntil)
	assert.Nil(t, s.LastTriggerReason)

	assert.False(t, Patch{Enabled: ptr(false)}.Apply(s))
}
