package emergency

import (
	"time"

	apperrors "rapidresponse/internal/common/errors"
	"rapidresponse/internal/models"
)

var statsPeriods = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// DefaultStatsPeriod is used when no period is requested.
const DefaultStatsPeriod = "24h"

// ParsePeriod returns the window length of a stats period label.
func ParsePeriod(period string) (time.Duration, error) {
	if period == "" {
		period = DefaultStatsPeriod
	}
	d, ok := statsPeriods[period]
	if !ok {
		return 0, apperrors.NewInvalidInputError("period must be one of 24h, 7d, 30d")
	}
	return d, nil
}

type statSample struct {
	Type               string
	Status             models.EmergencyStatus
	ActualResponseTime *int
}

func computeStats(period string, samples []statSample) *models.EmergencyStats {
	stats := &models.EmergencyStats{
		Period:           period,
		TotalEmergencies: len(samples),
		ByType:           map[string]int{},
	}

	var (
		resolved int
		sum      int
		timed    int
	)
	for _, s := range samples {
		stats.ByType[s.Type]++
		if s.Status == models.StatusResolved {
			resolved++
		}
		if s.ActualResponseTime != nil {
			sum += *s.ActualResponseTime
			timed++
		}
	}

	if timed > 0 {
		avg := float64(sum) / float64(timed)
		stats.AverageResponseTime = &avg
	}
	if len(samples) > 0 {
		stats.SuccessRate = float64(resolved) / float64(len(samples))
	}
	return stats
}
