package updatestatus

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
	TaskType = "update-emergency-status"
)

var inputSchema = validation.MustCompile(TaskType+" input", `{
	"type": "object",
	"required": ["emergencyId", "status"],
	"properties": {
		"emergencyId": {"type": "string"},
		"status": {"type": "string"},
		"notes": {"type": "string"}
	}
}`)

type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id, status, notes string) (*models.Emergency, error)
}

type Handler struct {
	config  *Config
	updater StatusUpdater
	errors  *apperrors.ErrorHandler
	logger  logger.Logger
}

func NewHandler(config *Config, updater StatusUpdater, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:  config,
		updater: updater,
		errors:  apperrors.NewErrorHandler(l),
		logger:  l,
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

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	id := strings.TrimSpace(input.EmergencyID)
	if id == "" {
		return nil, apperrors.NewInvalidInputError("emergencyId is required")
	}
	if strings.TrimSpace(input.Status) == "" {
		return nil, apperrors.NewInvalidInputError("status is required")
	}

	e, err := h.updater.UpdateStatus(ctx, id, input.Status, input.Notes)
	if err != nil {
		return nil, err
	}

	h.logger.Info("emergency status updated", map[string]interface{}{
		"emergencyId": e.ID,
		"status":      e.Status,
	})
	return &Output{
		EmergencyID:        e.ID,
		Status:             e.Status,
		ActualResponseTime: e.ActualResponseTime,
	}, nil
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
