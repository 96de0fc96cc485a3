package emergency

import (
	"testing"
	"time"

	apperrors "rapidresponse/internal/common/errors"
	"rapidresponse/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		period  string
		want    time.Duration
		wantErr bool
	}{
		{"24h", 24 * time.Hour, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"30d", 30 * 24 * time.Hour, false},
		{"", 24 * time.Hour, false},
		{"1h", 0, true},
		{"month", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			got, err := ParsePeriod(tt.period)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeStats_Empty(t *testing.T) {
	stats := computeStats("30d", nil)

	assert.Equal(t, 0, stats.TotalEmergencies)
	assert.Nil(t, stats.AverageResponseTime)
	assert.NotNil(t, stats.ByType)
	assert.Zero(t, stats.SuccessRate)
}

func TestComputeStats(t *testing.T) {
	ten, five := 10, 5
	stats := computeStats("7d", []statSample{
		{Type: "FIRE", Status: models.StatusResolved, ActualResponseTime: &ten},
		{Type: "FIRE", Status: models.StatusResolved, ActualResponseTime: &five},
		{Type: "TRAFFIC", Status: models.StatusActive},
	})

	assert.Equal(t, 3, stats.TotalEmergencies)
	assert.InDelta(t, 7.5, *stats.AverageResponseTime, 1e-9)
	assert.Equal(t, 2, stats.ByType["FIRE"])
	assert.InDelta(t, 2.0/3.0, stats.SuccessRate, 1e-9)
}
