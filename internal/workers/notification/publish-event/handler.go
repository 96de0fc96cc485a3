package publishevent

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	apperrors "rapidresponse/internal/common/errors"
	"rapidresponse/internal/common/logger"
	"rapidresponse/internal/common/metrics"
	"rapidresponse/internal/common/validation"
	"rapidresponse/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "publish-notification-event"
)

var inputSchema = validation.MustCompile(TaskType+" input", `{
	"type": "object",
	"required": ["eventType"],
	"properties": {
		"eventType": {"type": "string"},
		"emergencyId": {"type": "string"},
		"data": {"type": "object"}
	}
}`)

type Publisher interface {
	Publish(ctx context.Context, event models.Event) (*models.PublishResult, error)
}

type Handler struct {
	config    *Config
	publisher Publisher
	errors    *apperrors.ErrorHandler
	logger    logger.Logger
}

func NewHandler(config *Config, publisher Publisher, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		publisher: publisher,
		errors:    apperrors.NewErrorHandler(l),
		logger:    l,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})
	start := time.Now()
	defer func() {
		metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := decodeInput(job.Variables)
	if err != nil {
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
}

func decodeInput(variables string) (*Input, error) {
	if err := inputSchema.Check([]byte(variables)); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, apperrors.NewInvalidInputError("parse input: " + err.Error())
	}
	return &input, nil
}

// Execute fans the event out. Individual delivery failures are reported in the
// counts and do not fail the job.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	eventType := strings.TrimSpace(input.EventType)
	if eventType == "" {
		return nil, apperrors.NewInvalidInputError("eventType is required")
	}

	result, err := h.publisher.Publish(ctx, models.GenericEvent{
		Type:        eventType,
		EmergencyID: input.EmergencyID,
		Data:        input.Data,
	})
	if err != nil {
		return nil, err
	}

	output := &Output{
		EventType: eventType,
		Matched:   result.Matched,
		Sent:      result.Sent,
		Delivered: result.Delivered,
		Pending:   result.Pending,
		Failed:    result.Failed,
	}
	h.logger.Info("event published", map[string]interface{}{
		"eventType": eventType,
		"matched":   output.Matched,
		"failed":    output.Failed,
	})
	return output, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.logger.Info("job completed successfully", map[string]interface{}{
		"jobKey": job.Key,
	})
}
