package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	for _, s := range Statuses() {
		got, err := ParseStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := ParseStatus("Scheduled")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = ParseStatus("")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, StatusScheduled.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusNoShow.IsTerminal())
}

func TestCanTransition(t *testing.T) {
	for _, from := range Statuses() {
		for _, to := range Statuses() {
			want := from == StatusScheduled && to != StatusScheduled
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanOverride(t *testing.T) {
	assert.True(t, CanOverride(StatusScheduled, StatusCompleted))
	assert.True(t, CanOverride(StatusCompleted, StatusNoShow))
	assert.True(t, CanOverride(StatusCancelled, StatusCancelled))
	assert.True(t, CanOverride(StatusScheduled, StatusScheduled))
	assert.False(t, CanOverride(StatusCancelled, StatusScheduled))
	assert.False(t, CanOverride(StatusNoShow, StatusScheduled))
	assert.False(t, CanOverride(StatusScheduled, AppointmentStatus("pending")))
}
