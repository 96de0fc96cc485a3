package processreport

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"rapidresponse/internal/common/config"
	apperrors "rapidresponse/internal/common/errors"
	"rapidresponse/internal/common/logger"
	"rapidresponse/internal/intake"
	"rapidresponse/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockProcessor struct {
	ProcessReportFunc func(ctx context.Context, r intake.Report) (*models.Emergency, error)
}

func (m *mockProcessor) ProcessReport(ctx context.Context, r intake.Report) (*models.Emergency, error) {
	return m.ProcessReportFunc(ctx, r)
}

func createTestHandler(t *testing.T, p ReportProcessor) *Handler {
	return NewHandler(LoadConfig(config.WorkerConfig{}), p, logger.NewTestLogger(t))
}

func TestHandler_Execute_Success(t *testing.T) {
	eta := 7
	var got intake.Report
	h := createTestHandler(t, &mockProcessor{
		ProcessReportFunc: func(ctx context.Context, r intake.Report) (*models.Emergency, error) {
			got = r
			return &models.Emergency{
				ID:       "em-1",
				Type:     models.TypeFire,
				Priority: models.PriorityHigh,
				Status:   models.StatusActive,
				ResponsePlan: models.EmergencyRecord{
					Details: models.ReportDetails{
						RequiredServices: models.RequiredServices{Fire: true, Medical: true},
						Context:          &models.EmergencyContext{Degraded: []string{"traffic"}},
					},
				},
				EstimatedResponseTime: &eta,
			}, nil
		},
	})

	loc := &models.Location{Lat: 40.7, Lon: -74}
	out, err := h.Execute(context.Background(), &Input{Text: "house on fire", Location: loc})
	require.NoError(t, err)

	assert.Equal(t, "house on fire", got.Text)
	assert.Equal(t, loc, got.Location)
	assert.Equal(t, "em-1", out.EmergencyID)
	assert.Equal(t, models.TypeFire, out.EmergencyType)
	assert.Equal(t, models.PriorityHigh, out.Priority)
	assert.Equal(t, models.StatusActive, out.Status)
	assert.True(t, out.RequiredServices.Fire)
	assert.True(t, out.RequiredServices.Medical)
	assert.False(t, out.RequiredServices.Police)
	require.NotNil(t, out.EstimatedResponseTime)
	assert.Equal(t, 7, *out.EstimatedResponseTime)
	assert.Equal(t, []string{"traffic"}, out.DegradedSources)
}

func TestHandler_Execute_PropagatesError(t *testing.T) {
	h := createTestHandler(t, &mockProcessor{
		ProcessReportFunc: func(ctx context.Context, r intake.Report) (*models.Emergency, error) {
			return nil, apperrors.NewClassificationFailedError(errors.New("503"))
		},
	})

	out, err := h.Execute(context.Background(), &Input{Text: "help"})
	assert.Nil(t, out)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeClassificationFailed))
}

func TestDecodeInput(t *testing.T) {
	audio := []byte{0x1, 0x2, 0x3}

	tests := []struct {
		name      string
		variables string
		wantErr   bool
		check     func(t *testing.T, in *Input)
	}{
		{
			name:      "text and location",
			variables: `{"text":"car crash","location":{"lat":1.5,"lon":2.5}}`,
			check: func(t *testing.T, in *Input) {
				assert.Equal(t, "car crash", in.Text)
				require.NotNil(t, in.Location)
				assert.Equal(t, 1.5, in.Location.Lat)
			},
		},
		{
			name:      "base64 audio",
			variables: `{"audio":"` + base64.StdEncoding.EncodeToString(audio) + `"}`,
			check: func(t *testing.T, in *Input) {
				assert.Equal(t, audio, in.Audio)
				assert.Nil(t, in.Location)
			},
		},
		{
			name:      "malformed",
			variables: `{"text":`,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := decodeInput(tt.variables)
			if tt.wantErr {
				assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
				return
			}
			require.NoError(t, err)
			tt.check(t, in)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	assert.Equal(t, int64(60), int64(LoadConfig(config.WorkerConfig{}).Timeout.Seconds()))
	assert.Equal(t, int64(5), int64(LoadConfig(config.WorkerConfig{Timeout: 5000}).Timeout.Seconds()))
}
