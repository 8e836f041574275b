package captcha

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Remote posts images to an OCR HTTP service.
type Remote struct {
	client   *resty.Client
	endpoint string
}

type remoteRequest struct {
	Image string `json:"image"`
}

type remoteResponse struct {
	Code       string  `json:"code"`
	Result     string  `json:"result"`
	Confidence float64 `json:"confidence"`
}

// NewRemote returns an engine that calls endpoint. A nil client gets a
// default one with a ten second timeout.
func NewRemote(endpoint string, client *resty.Client) *Remote {
	if client == nil {
		client = resty.New().SetTimeout(10 * time.Second)
	}
	return &Remote{client: client, endpoint: endpoint}
}

// Name implements Engine.
func (r *Remote) Name() string { return "remote" }

// Recognize implements Engine.
func (r *Remote) Recognize(ctx context.Context, image []byte) (string, float64, error) {
	if strings.TrimSpace(r.endpoint) == "" {
		return "", 0, fmt.Errorf("%w: remote endpoint not configured", ErrEngineUnavailable)
	}
	var out remoteResponse
	res, err := r.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(remoteRequest{Image: base64.StdEncoding.EncodeToString(image)}).
		SetResult(&out).
		Post(r.endpoint)
	if err != nil {
		return "", 0, fmt.Errorf("ocr request: %w", err)
	}
	if res.IsError() {
		return "", 0, fmt.Errorf("ocr status %d", res.StatusCode())
	}
	code := out.Code
	if code == "" {
		code = out.Result
	}
	return code, out.Confidence, nil
}
