package publishevent

import (
	"context"
	"errors"
	"testing"

	"rapidresponse/internal/common/config"
	apperrors "rapidresponse/internal/common/errors"
	"rapidresponse/internal/common/logger"
	"rapidresponse/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	PublishFunc func(ctx context.Context, event models.Event) (*models.PublishResult, error)
	events      []models.Event
}

func (m *mockPublisher) Publish(ctx context.Context, event models.Event) (*models.PublishResult, error) {
	m.events = append(m.events, event)
	return m.PublishFunc(ctx, event)
}

func createTestHandler(t *testing.T, p Publisher) *Handler {
	return NewHandler(LoadConfig(config.WorkerConfig{}), p, logger.NewTestLogger(t))
}

func TestHandler_Execute_Counts(t *testing.T) {
	p := &mockPublisher{
		PublishFunc: func(ctx context.Context, event models.Event) (*models.PublishResult, error) {
			return &models.PublishResult{
				EventType: event.EventType(),
				Matched:   4,
				Sent:      1,
				Delivered: 1,
				Pending:   1,
				Failed:    1,
			}, nil
		},
	}
	h := createTestHandler(t, p)

	out, err := h.Execute(context.Background(), &Input{
		EventType:   " units_dispatched ",
		EmergencyID: "em-1",
		Data:        map[string]interface{}{"units": 3},
	})
	require.NoError(t, err)

	require.Len(t, p.events, 1)
	ev, ok := p.events[0].(models.GenericEvent)
	require.True(t, ok)
	assert.Equal(t, "units_dispatched", ev.Type)
	assert.Equal(t, "em-1", ev.EmergencyRef())
	assert.Equal(t, 3, ev.Data["units"])

	assert.Equal(t, &Output{
		EventType: "units_dispatched",
		Matched:   4,
		Sent:      1,
		Delivered: 1,
		Pending:   1,
		Failed:    1,
	}, out)
}

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name       string
		input      *Input
		publishErr error
		wantCode   apperrors.ErrorCode
		wantEvents int
	}{
		{
			name:     "missing event type",
			input:    &Input{EventType: "  "},
			wantCode: apperrors.ErrCodeInvalidInput,
		},
		{
			name:       "subscription lookup failed",
			input:      &Input{EventType: "emergency_created"},
			publishErr: apperrors.NewQueryExecutionFailedError("list_subscriptions", errors.New("conn reset")),
			wantCode:   apperrors.ErrCodeQueryExecutionFailed,
			wantEvents: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockPublisher{
				PublishFunc: func(ctx context.Context, event models.Event) (*models.PublishResult, error) {
					return nil, tt.publishErr
				},
			}
			h := createTestHandler(t, p)

			out, err := h.Execute(context.Background(), tt.input)
			assert.Nil(t, out)
			assert.True(t, apperrors.HasCode(err, tt.wantCode), "got %v", err)
			assert.Len(t, p.events, tt.wantEvents)
		})
	}
}

func TestDecodeInput(t *testing.T) {
	in, err := decodeInput(`{"eventType":"status_changed","emergencyId":"em-2","data":{"k":"v"}}`)
	require.NoError(t, err)
	assert.Equal(t, "status_changed", in.EventType)
	assert.Equal(t, "em-2", in.EmergencyID)
	assert.Equal(t, "v", in.Data["k"])

	_, err = decodeInput(`[]`)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
}
