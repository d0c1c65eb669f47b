package protection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/apiguard/pkg/constants"
)

func TestViolationLog(t *testing.T) {
	t.Run("Record should assign an ID and timestamp", func(t *testing.T) {
		clock := newFakeClock()
		v := NewViolationLog(clock)

		req := &APIRequest{Endpoint: "/auth/login", Method: "POST", IPAddress: "203.0.113.7"}
		violation := v.Record(constants.ViolationRateLimit, constants.SeverityMedium, req, "quota exceeded")

		assert.NotEmpty(t, violation.ID)
		assert.Equal(t, clock.Now(), violation.Timestamp)
		assert.Equal(t, constants.ViolationRateLimit, violation.Type)
		assert.Equal(t, "203.0.113.7", violation.Request.IPAddress)
	})

	t.Run("CountSince and Recent should honor the window", func(t *testing.T) {
		clock := newFakeClock()
		v := NewViolationLog(clock)

		v.Record(constants.ViolationDDoS, constants.SeverityCritical, nil, "old")
		clock.Advance(2 * time.Hour)
		v.Record(constants.ViolationAbuse, constants.SeverityMedium, nil, "recent")

		assert.Equal(t, 1, v.CountSince(time.Hour))
		assert.Equal(t, 2, v.CountSince(3*time.Hour))

		recent := v.Recent(time.Hour)
		require.Len(t, recent, 1)
		assert.Equal(t, "recent", recent[0].Details)
	})

	t.Run("Prune should drop entries past retention", func(t *testing.T) {
		clock := newFakeClock()
		v := NewViolationLog(clock)

		v.Record(constants.ViolationAbuse, constants.SeverityMedium, nil, "first")
		clock.Advance(time.Hour)
		v.Record(constants.ViolationAbuse, constants.SeverityMedium, nil, "second")
		clock.Advance(time.Hour)

		dropped := v.Prune(90 * time.Minute)
		assert.Equal(t, 1, dropped)

		recent := v.Recent(24 * time.Hour)
		require.Len(t, recent, 1)
		assert.Equal(t, "second", recent[0].Details)
	})

	t.Run("should cap the log at the entry bound", func(t *testing.T) {
		clock := newFakeClock()
		v := NewViolationLog(clock)
		v.maxEntries = 5

		for i := 0; i < 8; i++ {
			v.Record(constants.ViolationRateLimit, constants.SeverityLow, nil, "entry")
		}
		assert.Equal(t, 5, v.CountSince(time.Hour))
	})

	t.Run("Clear should empty the log", func(t *testing.T) {
		clock := newFakeClock()
		v := NewViolationLog(clock)

		v.Record(constants.ViolationAbuse, constants.SeverityMedium, nil, "entry")
		v.Clear()
		assert.Equal(t, 0, v.CountSince(time.Hour))
	})
}
