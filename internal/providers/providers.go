// Package providers holds the HTTP clients for the speech, translation and
// classification collaborators used during intake.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"rapidresponse/internal/common/config"
	httpclient "rapidresponse/internal/common/http"
	"rapidresponse/internal/common/validation"
)

type Transcription struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

type LanguageDetection struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

type Translation struct {
	TranslatedText   string `json:"translated_text"`
	DetectedLanguage string `json:"detected_language,omitempty"`
}

type Classification struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Priority   string  `json:"priority"`
}

// Transcriber converts audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (*Transcription, error)
}

// Translator detects the language of text and translates it.
type Translator interface {
	DetectLanguage(ctx context.Context, text string) (*LanguageDetection, error)
	Translate(ctx context.Context, text, targetLanguage string) (*Translation, error)
}

// Classifier assigns an emergency type and priority to text.
type Classifier interface {
	Classify(ctx context.Context, text string) (*Classification, error)
}

var (
	transcriptionSchema = validation.MustCompile("transcription", `{
		"type": "object",
		"required": ["text"],
		"properties": {
			"text": {"type": "string"},
			"language": {"type": "string"},
			"duration": {"type": "number"}
		}
	}`)

	detectionSchema = validation.MustCompile("language detection", `{
		"type": "object",
		"required": ["language"],
		"properties": {
			"language": {"type": "string", "minLength": 2},
			"confidence": {"type": "number"}
		}
	}`)

	translationSchema = validation.MustCompile("translation", `{
		"type": "object",
		"required": ["translated_text"],
		"properties": {
			"translated_text": {"type": "string"},
			"detected_language": {"type": "string"}
		}
	}`)

	classificationSchema = validation.MustCompile("classification", `{
		"type": "object",
		"required": ["type", "confidence", "priority"],
		"properties": {
			"type": {"type": "string", "minLength": 1},
			"confidence": {"type": "number", "minimum": 0, "maximum": 1},
			"priority": {"type": "string", "enum": ["HIGH", "MEDIUM", "LOW", "high", "medium", "low"]}
		}
	}`)
)

// decode validates raw against schema before unmarshalling it into dest.
func decode(raw []byte, schema *validation.Schema, dest interface{}) error {
	if err := schema.Check(raw); err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func endpoint(base, path string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + path)
	if err != nil {
		return "", fmt.Errorf("invalid provider url %q: %w", base, err)
	}
	return u.String(), nil
}

func newHTTPClient(cfg config.ProviderEndpoint) *httpclient.Client {
	return httpclient.NewClient(config.GetDuration(cfg.Timeout)).WithAPIKey(cfg.APIKey)
}

// ==========================
// Speech
// ==========================

type SpeechClient struct {
	baseURL string
	client  *httpclient.Client
}

func NewSpeechClient(cfg config.ProviderEndpoint) *SpeechClient {
	return &SpeechClient{baseURL: cfg.BaseURL, client: newHTTPClient(cfg)}
}

func (c *SpeechClient) Transcribe(ctx context.Context, audio []byte) (*Transcription, error) {
	u, err := endpoint(c.baseURL, "/transcribe")
	if err != nil {
		return nil, err
	}
	raw, err := c.client.PostBytes(ctx, u, "application/octet-stream", audio)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	var out Transcription
	if err := decode(raw, transcriptionSchema, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ==========================
// Translation
// ==========================

type TranslationClient struct {
	baseURL string
	client  *httpclient.Client
}

func NewTranslationClient(cfg config.ProviderEndpoint) *TranslationClient {
	return &TranslationClient{baseURL: cfg.BaseURL, client: newHTTPClient(cfg)}
}

func (c *TranslationClient) DetectLanguage(ctx context.Context, text string) (*LanguageDetection, error) {
	u, err := endpoint(c.baseURL, "/detect")
	if err != nil {
		return nil, err
	}
	raw, err := c.client.PostJSON(ctx, u, map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("detect language: %w", err)
	}
	var out LanguageDetection
	if err := decode(raw, detectionSchema, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *TranslationClient) Translate(ctx context.Context, text, targetLanguage string) (*Translation, error) {
	u, err := endpoint(c.baseURL, "/translate")
	if err != nil {
		return nil, err
	}
	raw, err := c.client.PostJSON(ctx, u, map[string]string{
		"text":            text,
		"target_language": targetLanguage,
	})
	if err != nil {
		return nil, fmt.Errorf("translate: %w", err)
	}
	var out Translation
	if err := decode(raw, translationSchema, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ==========================
// Classification
// ==========================

type ClassificationClient struct {
	baseURL string
	client  *httpclient.Client
}

func NewClassificationClient(cfg config.ProviderEndpoint) *ClassificationClient {
	return &ClassificationClient{baseURL: cfg.BaseURL, client: newHTTPClient(cfg)}
}

func (c *ClassificationClient) Classify(ctx context.Context, text string) (*Classification, error) {
	u, err := endpoint(c.baseURL, "/classify")
	if err != nil {
		return nil, err
	}
	raw, err := c.client.PostJSON(ctx, u, map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	var out Classification
	if err := decode(raw, classificationSchema, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
