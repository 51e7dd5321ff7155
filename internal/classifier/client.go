package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/MikeSquared-Agency/empath/internal/emotion"
)

// Client calls a model service over HTTP: POST {url}/predict.
type Client struct {
	modality emotion.Modality
	url      string
	vocab    emotion.Vocabulary
	client   *http.Client
}

func NewClient(m emotion.Modality, url string, vocab emotion.Vocabulary) *Client {
	return &Client{
		modality: m,
		url:      url,
		vocab:    append(emotion.Vocabulary(nil), vocab...),
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type predictRequest struct {
	Image      []byte `json:"image,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	Audio      []byte `json:"audio,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Text       string `json:"text,omitempty"`
	MaxLength  int    `json:"max_length,omitempty"`
}

type predictResponse struct {
	Label         string    `json:"label"`
	Labels        []string  `json:"labels"`
	Probabilities []float64 `json:"probabilities"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) Modality() emotion.Modality { return c.modality }

// Predict sends one input and returns the label plus the full distribution
// over the classifier's vocabulary.
func (c *Client) Predict(ctx context.Context, in Input) (*Prediction, error) {
	reqBody, err := c.buildRequest(in)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s predict: %w", c.modality, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("%s predict %d: %s", c.modality, resp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("%s predict %d: %s", c.modality, resp.StatusCode, string(respBody))
	}

	var out predictResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return c.toPrediction(out)
}

func (c *Client) buildRequest(in Input) (predictRequest, error) {
	switch c.modality {
	case emotion.Face:
		if err := ValidateFaceImage(in.Image); err != nil {
			return predictRequest{}, err
		}
		return predictRequest{Image: in.Image, Width: FaceSide, Height: FaceSide}, nil
	case emotion.Audio:
		wav, err := os.ReadFile(in.AudioPath)
		if err != nil {
			return predictRequest{}, fmt.Errorf("read recording: %w", err)
		}
		return predictRequest{Audio: wav, SampleRate: AudioSampleHz}, nil
	case emotion.Text:
		return predictRequest{Text: TruncateTokens(in.Text, MaxTextTokens), MaxLength: MaxTextTokens}, nil
	}
	return predictRequest{}, fmt.Errorf("unsupported modality %q", c.modality)
}

func (c *Client) toPrediction(out predictResponse) (*Prediction, error) {
	if len(out.Labels) > 0 && !slices.Equal(out.Labels, []string(c.vocab)) {
		return nil, fmt.Errorf("%s model labels %v do not match vocabulary %v", c.modality, out.Labels, c.vocab)
	}
	dist, err := emotion.NewDistribution(c.vocab, out.Probabilities)
	if err != nil {
		return nil, fmt.Errorf("%s model output: %w", c.modality, err)
	}

	label := out.Label
	if label == "" {
		label, _ = dist.Argmax()
	} else if c.vocab.Index(label) < 0 {
		return nil, fmt.Errorf("%s model returned unknown label %q", c.modality, label)
	}
	return &Prediction{Label: label, Distribution: dist}, nil
}

// Load probes {url}/health once at startup. A missing URL or failed probe
// yields an Unavailable classifier rather than an error so the process keeps
// serving the other modalities.
func Load(ctx context.Context, m emotion.Modality, url string, vocab emotion.Vocabulary, logger *slog.Logger) Classifier {
	if url == "" {
		logger.Warn("classifier not configured", "modality", m)
		return NewUnavailable(m, "no model url configured")
	}

	c := NewClient(m, url, vocab)
	if err := c.Health(ctx); err != nil {
		logger.Warn("classifier failed to load", "modality", m, "url", url, "error", err)
		return NewUnavailable(m, err.Error())
	}
	logger.Info("classifier loaded", "modality", m, "url", url)
	return c
}

func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check: status %d", resp.StatusCode)
	}
	return nil
}
