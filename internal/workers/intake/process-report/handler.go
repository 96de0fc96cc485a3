package processreport

import (
	"context"
	"encoding/json"
	"time"

	apperrors "rapidresponse/internal/common/errors"
	"rapidresponse/internal/common/logger"
	"rapidresponse/internal/common/metrics"
	"rapidresponse/internal/common/validation"
	"rapidresponse/internal/intake"
	"rapidresponse/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "process-emergency-report"
)

var inputSchema = validation.MustCompile(TaskType+" input", `{
	"type": "object",
	"properties": {
		"text": {"type": "string"},
		"audio": {"type": "string"},
		"location": {
			"type": "object",
			"required": ["lat", "lon"],
			"properties": {
				"lat": {"type": "number"},
				"lon": {"type": "number"}
			}
		}
	}
}`)

// ReportProcessor runs a report through intake.
type ReportProcessor interface {
	ProcessReport(ctx context.Context, r intake.Report) (*models.Emergency, error)
}

type Handler struct {
	config    *Config
	processor ReportProcessor
	errors    *apperrors.ErrorHandler
	logger    logger.Logger
}

func NewHandler(config *Config, processor ReportProcessor, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		processor: processor,
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

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	e, err := h.processor.ProcessReport(ctx, intake.Report{
		Text:     input.Text,
		Audio:    input.Audio,
		Location: input.Location,
	})
	if err != nil {
		return nil, err
	}

	output := &Output{
		EmergencyID:           e.ID,
		EmergencyType:         e.Type,
		Priority:              e.Priority,
		Status:                e.Status,
		RequiredServices:      e.ResponsePlan.Details.RequiredServices,
		EstimatedResponseTime: e.EstimatedResponseTime,
	}
	if c := e.ResponsePlan.Details.Context; c != nil {
		output.DegradedSources = c.Degraded
	}

	h.logger.Info("emergency created", map[string]interface{}{
		"emergencyId": e.ID,
		"type":        e.Type,
		"priority":    e.Priority,
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
