// Package intake turns a raw emergency report into a persisted, classified and
// enriched Emergency and announces it to subscribers.
package intake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rapidresponse/internal/common/config"
	apperrors "rapidresponse/internal/common/errors"
	"rapidresponse/internal/common/logger"
	"rapidresponse/internal/common/metrics"
	"rapidresponse/internal/common/observability"
	"rapidresponse/internal/models"
	"rapidresponse/internal/providers"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Report is an inbound emergency report. At least one of Text or Audio is required.
type Report struct {
	Text     string
	Audio    []byte
	Location *models.Location
}

// Store persists new emergencies.
type Store interface {
	Create(ctx context.Context, e *models.Emergency) error
}

// AvailabilityReader lists the current responder service availability.
type AvailabilityReader interface {
	List(ctx context.Context) ([]models.ServiceAvailability, error)
}

// Publisher fans an event out to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event models.Event) (*models.PublishResult, error)
}

// ContextEnricher gathers situational context for a location.
type ContextEnricher interface {
	Enrich(ctx context.Context, loc models.Location, emergencyType string) *models.EmergencyContext
}

// Dependencies are the collaborators an Orchestrator drives. Availability, Enricher and
// Publisher are optional.
type Dependencies struct {
	Transcriber  providers.Transcriber
	Translator   providers.Translator
	Classifier   providers.Classifier
	Enricher     ContextEnricher
	Store        Store
	Availability AvailabilityReader
	Publisher    Publisher
	Obs          *observability.Observability
}

type stageTimeouts struct {
	transcribe time.Duration
	translate  time.Duration
	classify   time.Duration
}

type Orchestrator struct {
	deps            Dependencies
	timeouts        stageTimeouts
	workingLanguage string
	staleAfter      time.Duration
	now             func() time.Time
	logger          logger.Logger
}

func NewOrchestrator(deps Dependencies, cfg *config.Config, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		deps: deps,
		timeouts: stageTimeouts{
			transcribe: config.GetDuration(cfg.Providers.Speech.Timeout),
			translate:  config.GetDuration(cfg.Providers.Translation.Timeout),
			classify:   config.GetDuration(cfg.Providers.Classification.Timeout),
		},
		workingLanguage: baseLanguage(cfg.Providers.WorkingLanguage),
		staleAfter:      config.GetDuration(cfg.Availability.StaleAfter),
		now:             time.Now,
		logger:          log.WithFields(map[string]interface{}{"component": "intake"}),
	}
}

// ProcessReport runs a report through transcription, language normalization,
// classification, service resolution and enrichment, then stores the emergency and
// publishes emergency_created. Nothing is stored when an earlier stage fails.
func (o *Orchestrator) ProcessReport(ctx context.Context, r Report) (result *models.Emergency, err error) {
	start := time.Now()
	ctx, span := o.deps.Obs.StartSpan(ctx, "intake.process_report",
		attribute.Bool("has_audio", len(r.Audio) > 0),
		attribute.Bool("has_location", r.Location != nil),
	)
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(apperrors.CodeOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
		metrics.IntakeReports.WithLabelValues(outcome).Inc()
		o.deps.Obs.RecordReportProcessed(ctx, outcome)
		o.deps.Obs.RecordReportDuration(ctx, time.Since(start), outcome)
	}()

	if err := validateReport(r); err != nil {
		return nil, err
	}

	text, err := o.resolveText(ctx, r)
	if err != nil {
		return nil, err
	}

	language, processed, err := o.normalizeLanguage(ctx, text)
	if err != nil {
		return nil, err
	}

	cls, priority, err := o.classify(ctx, processed)
	if err != nil {
		return nil, err
	}
	emergencyType := models.NormalizeType(cls.Type)
	services := ResolveRequiredServices(emergencyType, cls.Confidence)

	var emergencyCtx *models.EmergencyContext
	if r.Location != nil && o.deps.Enricher != nil {
		_ = o.stage(ctx, "enrich", 0, func(ctx context.Context) error {
			emergencyCtx = o.deps.Enricher.Enrich(ctx, *r.Location, emergencyType)
			return nil
		})
	}

	now := o.now().UTC()
	e := &models.Emergency{
		ID:       uuid.NewString(),
		Type:     emergencyType,
		Priority: priority,
		Status:   models.StatusActive,
		Location: r.Location,
		ResponsePlan: models.EmergencyRecord{
			Type:     emergencyType,
			Priority: priority,
			Details: models.ReportDetails{
				OriginalText:     text,
				OriginalLanguage: language,
				ProcessedText:    processed,
				Location:         r.Location,
				Confidence:       cls.Confidence,
				RequiredServices: services,
				Context:          emergencyCtx,
			},
		},
		EstimatedResponseTime: o.estimateResponseTime(ctx, services),
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	err = o.stage(ctx, "store", 0, func(ctx context.Context) error {
		return o.deps.Store.Create(ctx, e)
	})
	if err != nil {
		if _, ok := apperrors.AsStandard(err); ok {
			return nil, err
		}
		return nil, apperrors.NewDatabaseInsertFailedError(err)
	}

	o.logger.Info("Emergency created", map[string]interface{}{
		"emergency_id": e.ID,
		"type":         e.Type,
		"priority":     e.Priority,
		"services":     services.ServiceTypes(),
	})

	o.publishCreated(ctx, e)
	return e, nil
}

func validateReport(r Report) error {
	if strings.TrimSpace(r.Text) == "" && len(r.Audio) == 0 {
		return apperrors.NewInvalidInputError("either text or audio must be provided")
	}
	if r.Location != nil && !r.Location.Valid() {
		return apperrors.NewInvalidInputError(fmt.Sprintf("location out of range: lat=%v lon=%v", r.Location.Lat, r.Location.Lon))
	}
	return nil
}

// resolveText returns the text to work with. A failed transcription falls back to the
// submitted text when there is one.
func (o *Orchestrator) resolveText(ctx context.Context, r Report) (string, error) {
	text := strings.TrimSpace(r.Text)
	if len(r.Audio) == 0 {
		return text, nil
	}

	var transcript string
	err := o.stage(ctx, "transcribe", o.timeouts.transcribe, func(ctx context.Context) error {
		if o.deps.Transcriber == nil {
			return fmt.Errorf("speech provider not configured")
		}
		res, err := o.deps.Transcriber.Transcribe(ctx, r.Audio)
		if err != nil {
			return err
		}
		transcript = strings.TrimSpace(res.Text)
		if transcript == "" {
			return fmt.Errorf("empty transcript")
		}
		return nil
	})
	if err == nil {
		return transcript, nil
	}
	if text == "" {
		return "", apperrors.NewTranscriptionFailedError(err)
	}

	o.logger.Warn("Transcription failed, using submitted text", map[string]interface{}{
		"error":       err.Error(),
		"audio_bytes": len(r.Audio),
	})
	return text, nil
}

// normalizeLanguage detects the language of text and translates it into the working
// language when needed. It returns the detected language and the text to classify.
func (o *Orchestrator) normalizeLanguage(ctx context.Context, text string) (string, string, error) {
	var language string
	err := o.stage(ctx, "detect_language", o.timeouts.translate, func(ctx context.Context) error {
		res, err := o.deps.Translator.DetectLanguage(ctx, text)
		if err != nil {
			return err
		}
		language = strings.TrimSpace(res.Language)
		return nil
	})
	if err != nil {
		return "", "", apperrors.NewTranslationFailedError(err)
	}

	if language == "" || baseLanguage(language) == o.workingLanguage {
		return language, text, nil
	}

	var translated string
	err = o.stage(ctx, "translate", o.timeouts.translate, func(ctx context.Context) error {
		res, err := o.deps.Translator.Translate(ctx, text, o.workingLanguage)
		if err != nil {
			return err
		}
		translated = strings.TrimSpace(res.TranslatedText)
		if translated == "" {
			return fmt.Errorf("empty translation")
		}
		return nil
	})
	if err != nil {
		return "", "", apperrors.NewTranslationFailedError(err)
	}
	return language, translated, nil
}

func (o *Orchestrator) classify(ctx context.Context, text string) (*providers.Classification, models.Priority, error) {
	var (
		cls      *providers.Classification
		priority models.Priority
	)
	err := o.stage(ctx, "classify", o.timeouts.classify, func(ctx context.Context) error {
		res, err := o.deps.Classifier.Classify(ctx, text)
		if err != nil {
			return err
		}
		if strings.TrimSpace(res.Type) == "" {
			return fmt.Errorf("classification has no type")
		}
		p, ok := models.ParsePriority(res.Priority)
		if !ok {
			return fmt.Errorf("unknown priority %q", res.Priority)
		}
		if res.Confidence < 0 || res.Confidence > 1 {
			return fmt.Errorf("confidence %v outside [0,1]", res.Confidence)
		}
		cls, priority = res, p
		return nil
	})
	if err != nil {
		return nil, "", apperrors.NewClassificationFailedError(err)
	}
	return cls, priority, nil
}

// estimateResponseTime returns the slowest average response time among the required
// services that currently have fresh, usable availability, or nil when none do.
func (o *Orchestrator) estimateResponseTime(ctx context.Context, services models.RequiredServices) *int {
	types := services.ServiceTypes()
	if len(types) == 0 || o.deps.Availability == nil {
		return nil
	}

	rows, err := o.deps.Availability.List(ctx)
	if err != nil {
		o.logger.Warn("Service availability unavailable, skipping estimate", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	byType := make(map[string]models.ServiceAvailability, len(rows))
	for _, row := range rows {
		byType[models.NormalizeType(row.ServiceType)] = row
	}

	now := o.now()
	var estimate *int
	for _, t := range types {
		row, ok := byType[t]
		if !ok || row.Status == models.ServiceInactive || row.AvailableUnits <= 0 || row.AverageResponseTime == nil {
			continue
		}
		if o.staleAfter > 0 && now.Sub(row.UpdatedAt) > o.staleAfter {
			continue
		}
		if estimate == nil || *row.AverageResponseTime > *estimate {
			v := *row.AverageResponseTime
			estimate = &v
		}
	}
	return estimate
}

func (o *Orchestrator) publishCreated(ctx context.Context, e *models.Emergency) {
	if o.deps.Publisher == nil {
		return
	}
	res, err := o.deps.Publisher.Publish(ctx, models.EmergencyCreatedEvent{Emergency: *e})
	if err != nil {
		o.logger.Error("Failed to publish emergency_created", map[string]interface{}{
			"emergency_id": e.ID,
			"error":        err.Error(),
		})
		return
	}
	o.logger.Debug("Published emergency_created", map[string]interface{}{
		"emergency_id": e.ID,
		"matched":      res.Matched,
	})
}

// stage runs fn under its own span and optional timeout and records its duration.
func (o *Orchestrator) stage(ctx context.Context, name string, timeout time.Duration, fn func(context.Context) error) error {
	ctx, span := o.deps.Obs.StartSpan(ctx, "intake."+name)
	defer span.End()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	metrics.IntakeStageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// baseLanguage returns the primary subtag of a BCP 47 tag, lower-cased.
func baseLanguage(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		return tag[:i]
	}
	return tag
}
