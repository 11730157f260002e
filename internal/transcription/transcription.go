package transcription

import (
	"context"
	"errors"
	"strings"
	"time"

	"accent-analyzer-go/internal/config"
	"accent-analyzer-go/internal/logger"
	"accent-analyzer-go/internal/modelapi"
	"accent-analyzer-go/internal/types"
)

// Transcriber turns an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// MockText is returned by the mock backend.
const MockText = "MOCK TRANSCRIPT: The quick brown fox jumps over the lazy dog."

type Mock struct {
	Text string
	Err  error
}

func (m Mock) Transcribe(ctx context.Context, audioPath string) (string, error) {
	return m.Text, m.Err
}

// Client calls an OpenAI-compatible /audio/transcriptions endpoint.
type Client struct {
	baseURL string
	model   string
	apiKey  string
	api     *modelapi.Client
}

type transcriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

func NewClient(baseURL, model, apiKey string, api *modelapi.Client) *Client {
	if api == nil {
		api = modelapi.New(5 * time.Minute)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		api:     api,
	}
}

func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if c.baseURL == "" {
		return "", errors.New("TRANSCRIBE_URL not set")
	}
	var resp transcriptionResponse
	err := c.api.PostJSON(ctx, modelapi.Upload{
		URL:    c.baseURL + "/audio/transcriptions",
		APIKey: c.apiKey,
		Fields: map[string]string{
			"model":    c.model,
			"language": "en",
		},
		FilePath: audioPath,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// FromConfig picks the backend. Supports mock mode via USE_MOCK_TRANSCRIBE=true.
func FromConfig(cfg config.Config) Transcriber {
	if cfg.UseMockTranscribe {
		return Mock{Text: MockText}
	}
	return NewClient(cfg.TranscribeURL, cfg.TranscribeModel, cfg.TranscribeAPIKey, nil)
}

// Gate runs t once over audio. Any error or blank transcript becomes a
// TranscriptionError; the text is returned only for logging.
func Gate(ctx context.Context, t Transcriber, audio types.ExtractedAudio, log *logger.Logger) (string, error) {
	if log == nil {
		log = logger.New()
	}
	log = log.WithComponent("transcription")

	text, err := t.Transcribe(ctx, audio.Path)
	if err != nil {
		log.WithError(err).Error("transcription failed")
		return "", types.NewError(types.ErrTranscription, err, "speech-to-text failed")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		log.Warn("empty transcript")
		return "", types.NewError(types.ErrTranscription, nil, "no intelligible speech found in audio")
	}
	log.WithField("chars", len(text)).Info("speech detected")
	return text, nil
}
