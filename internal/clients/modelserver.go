/**
 * Model Server Client - Pretrained Inference Backends
 *
 * This client delegates all heavy model inference to an external model server
 * speaking a KServe-v2-style JSON protocol. The worker never loads weights:
 * - /v2/models/{name}/infer      dense tensor in, logits out (classifier)
 * - /v2/models/{name}/generate   image + prompt in, text out (vision-to-seq)
 *
 * Model internals are opaque; the worker only depends on the narrow
 * tensor-in/label-out and image-in/text-out contracts.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/figstudio/figprocess-worker/internal/logging"
)

// ModelServerClient handles communication with the inference server
type ModelServerClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// InferTensor is one named dense input tensor
type InferTensor struct {
	Name     string    `json:"name"`
	Datatype string    `json:"datatype"`
	Shape    []int64   `json:"shape"`
	Data     []float32 `json:"data"`
}

// InferRequest represents a dense-tensor inference request
type InferRequest struct {
	Inputs []InferTensor `json:"inputs"`
}

// InferResponse represents a dense-tensor inference response
type InferResponse struct {
	ModelName string `json:"model_name"`
	Outputs   []struct {
		Name     string    `json:"name"`
		Datatype string    `json:"datatype"`
		Shape    []int64   `json:"shape"`
		Data     []float32 `json:"data"`
	} `json:"outputs"`
}

// GenerateRequest represents an image-conditioned text generation request
type GenerateRequest struct {
	Image         string  `json:"image"` // base64 encoded image
	Prompt        string  `json:"prompt"`
	MaxTokens     int     `json:"max_tokens"`
	NumBeams      int     `json:"num_beams,omitempty"`
	EarlyStopping bool    `json:"early_stopping,omitempty"`
	BanUnknown    bool    `json:"ban_unknown,omitempty"`
	DecoderInput  string  `json:"decoder_input,omitempty"` // decoder seed tokens, if any
	Temperature   float64 `json:"temperature,omitempty"`
}

// GenerateResponse represents a text generation response
type GenerateResponse struct {
	ModelName      string `json:"model_name"`
	Text           string `json:"text"`
	ProcessingTime int64  `json:"processing_time_ms"`
	Error          string `json:"error,omitempty"`
}

// NewModelServerClient creates a new model server client
func NewModelServerClient(baseURL string) *ModelServerClient {
	return &ModelServerClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // generation can take a while on CPU
		},
		logger: logging.NewLogger("ModelServerClient"),
	}
}

// HealthCheck verifies the model server is available
func (c *ModelServerClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/v2/health/ready", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("model server health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model server health check returned status %d", resp.StatusCode)
	}

	return nil
}

// Infer runs a single forward pass of the named model over one dense input
// tensor and returns the flat output data of the first output tensor.
func (c *ModelServerClient) Infer(ctx context.Context, modelName string, input []float32, shape []int64) ([]float32, error) {
	reqBody, err := json.Marshal(&InferRequest{
		Inputs: []InferTensor{
			{
				Name:     "input",
				Datatype: "FP32",
				Shape:    shape,
				Data:     input,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal inference request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/models/%s/infer", c.baseURL, modelName)
	body, err := c.post(ctx, endpoint, reqBody)
	if err != nil {
		return nil, err
	}

	var inferResp InferResponse
	if err := json.Unmarshal(body, &inferResp); err != nil {
		return nil, fmt.Errorf("failed to parse inference response: %w", err)
	}

	if len(inferResp.Outputs) == 0 {
		return nil, fmt.Errorf("model %s returned no output tensors", modelName)
	}

	return inferResp.Outputs[0].Data, nil
}

// Generate runs image-conditioned text generation on the named model
func (c *ModelServerClient) Generate(ctx context.Context, modelName string, req *GenerateRequest) (string, error) {
	c.logger.Info("Requesting generation",
		"model", modelName,
		"promptLength", len(req.Prompt),
		"maxTokens", req.MaxTokens)

	reqBody, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/models/%s/generate", c.baseURL, modelName)
	body, err := c.post(ctx, endpoint, reqBody)
	if err != nil {
		return "", err
	}

	var genResp GenerateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("failed to parse generate response: %w", err)
	}

	if genResp.Error != "" {
		return "", fmt.Errorf("model %s generation failed: %s", modelName, genResp.Error)
	}

	c.logger.Info("Generation complete",
		"model", modelName,
		"textLength", len(genResp.Text),
		"processingTime", genResp.ProcessingTime)

	return genResp.Text, nil
}

// post executes one JSON POST and returns the response body
func (c *ModelServerClient) post(ctx context.Context, endpoint string, reqBody []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Source", "figprocess-worker")
	httpReq.Header.Set("X-Request-ID", fmt.Sprintf("infer-%d", time.Now().UnixNano()))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to model server failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model server returned error status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
