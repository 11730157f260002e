// Package classifier wraps the accent identification model.
package classifier

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"accent-analyzer-go/internal/config"
	"accent-analyzer-go/internal/logger"
	"accent-analyzer-go/internal/modelapi"
	"accent-analyzer-go/internal/types"
)

// Prediction is the raw model output.
type Prediction struct {
	Label       string  `json:"label"`
	Probability float64 `json:"score"`
}

// Classifier identifies the accent spoken in an audio file.
type Classifier interface {
	Classify(ctx context.Context, audioPath string) (Prediction, error)
}

type Mock struct {
	Prediction Prediction
	Err        error
}

func (m Mock) Classify(ctx context.Context, audioPath string) (Prediction, error) {
	return m.Prediction, m.Err
}

// Client posts audio to {baseURL}/classify and expects {"label","score"}.
type Client struct {
	baseURL string
	api     *modelapi.Client
}

func NewClient(baseURL string, api *modelapi.Client) *Client {
	if api == nil {
		api = modelapi.New(5 * time.Minute)
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), api: api}
}

func (c *Client) Classify(ctx context.Context, audioPath string) (Prediction, error) {
	if c.baseURL == "" {
		return Prediction{}, errors.New("CLASSIFY_URL not set")
	}
	var p Prediction
	if err := c.api.PostJSON(ctx, modelapi.Upload{URL: c.baseURL + "/classify", FilePath: audioPath}, &p); err != nil {
		return Prediction{}, err
	}
	return p, nil
}

// FromConfig picks the backend. Supports mock mode via USE_MOCK_CLASSIFY=true.
func FromConfig(cfg config.Config) Classifier {
	if cfg.UseMockClassify {
		return Mock{Prediction: Prediction{Label: cfg.MockAccent, Probability: cfg.MockProbability}}
	}
	return NewClient(cfg.ClassifyURL, nil)
}

// Classify runs c once over audio and maps the result to a display accent.
// A zero probability is a valid low-confidence answer.
func Classify(ctx context.Context, c Classifier, audio types.ExtractedAudio, log *logger.Logger) (types.AccentClassification, error) {
	if log == nil {
		log = logger.New()
	}
	log = log.WithComponent("classifier")

	p, err := c.Classify(ctx, audio.Path)
	if err != nil {
		log.WithError(err).Error("classification failed")
		return types.AccentClassification{}, types.NewError(types.ErrClassification, err, "accent classification failed")
	}
	code := strings.TrimSpace(p.Label)
	if code == "" {
		return types.AccentClassification{}, types.NewError(types.ErrClassification, nil, "classifier returned no label")
	}
	if math.IsNaN(p.Probability) || p.Probability < 0 || p.Probability > 1 {
		return types.AccentClassification{}, types.NewError(types.ErrClassification, nil,
			"classifier returned probability %v outside [0,1]", p.Probability)
	}

	out := types.AccentClassification{
		Accent:     AccentName(code),
		Code:       code,
		Confidence: Confidence(p.Probability),
	}
	log.WithFields(logrus.Fields{"code": code, "accent": out.Accent, "confidence": out.Confidence}).Info("accent classified")
	return out, nil
}
