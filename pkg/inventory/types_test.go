package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriod_Contains(t *testing.T) {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	period := &Period{From: from, To: to}

	assert.True(t, period.Contains(from))
	assert.True(t, period.Contains(to.Add(-time.Nanosecond)))
	assert.False(t, period.Contains(to))
	assert.False(t, period.Contains(from.Add(-time.Second)))

	var open *Period
	assert.True(t, open.Contains(from))
	assert.True(t, (&Period{From: from}).Contains(to.AddDate(1, 0, 0)))
}
