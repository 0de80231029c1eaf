// Package mlclient calls the numeric intrusion classifier. The classifier is
// advisory: every failure path here degrades to "no verdict" and the analysis
// pipeline proceeds without it.
package mlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// FeatureCount is the exact vector length the classifier contract requires
// (CICIDS2017 flow features).
const FeatureCount = 77

// FeatureSynthesizer builds a full-length feature vector from whatever the
// caller supplied. Implementations must return exactly FeatureCount values.
type FeatureSynthesizer interface {
	Synthesize(prefix []float64) []float64
}

// ZeroFill is the default synthesis policy: reuse the supplied prefix
// (truncating overlong input) and zero-fill the remaining positions.
type ZeroFill struct{}

// Synthesize implements FeatureSynthesizer.
func (ZeroFill) Synthesize(prefix []float64) []float64 {
	out := make([]float64, FeatureCount)
	copy(out, prefix)
	return out
}

// Verdict is the classifier's prediction for one alert.
type Verdict struct {
	Label         string             `json:"prediction"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
	ModelUsed     string             `json:"model_used,omitempty"`

	// Synthetic marks verdicts derived from a synthesized feature vector so
	// downstream consumers can discount them.
	Synthetic bool `json:"synthetic"`
}

// Client talks to the ML inference API.
type Client struct {
	endpoint   string
	model      string
	timeout    time.Duration
	synth      FeatureSynthesizer
	httpClient *http.Client
}

// New creates a classifier client. A nil synthesizer defaults to ZeroFill.
func New(endpoint, model string, timeout time.Duration, synth FeatureSynthesizer) *Client {
	if synth == nil {
		synth = ZeroFill{}
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		model:      model,
		timeout:    timeout,
		synth:      synth,
		httpClient: &http.Client{},
	}
}

type predictRequest struct {
	Features  []float64 `json:"features"`
	ModelName string    `json:"model_name"`
}

type predictResponse struct {
	Prediction      string             `json:"prediction"`
	Confidence      float64            `json:"confidence"`
	Probabilities   map[string]float64 `json:"probabilities"`
	ModelUsed       string             `json:"model_used"`
	InferenceTimeMs float64            `json:"inference_time_ms"`
}

// Predict classifies one feature vector. A vector that is absent or not
// exactly FeatureCount long is replaced by a synthesized one and the verdict
// is tagged Synthetic.
func (c *Client) Predict(ctx context.Context, features []float64) (*Verdict, error) {
	synthetic := len(features) != FeatureCount
	if synthetic {
		features = c.synth.Synthesize(features)
	}
	if len(features) != FeatureCount {
		return nil, fmt.Errorf("synthesizer produced %d features, want %d", len(features), FeatureCount)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(predictRequest{Features: features, ModelName: c.model})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ml predict failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ml api error %d: %s", resp.StatusCode, string(respBody))
	}

	var out predictResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return &Verdict{
		Label:         out.Prediction,
		Confidence:    out.Confidence,
		Probabilities: out.Probabilities,
		ModelUsed:     out.ModelUsed,
		Synthetic:     synthetic,
	}, nil
}
