package magic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/TIANLI0/maskpaint/model"
)

// maxResponseSize 合并掩码是整幅 PNG，限制在 64MB
const maxResponseSize = 64 << 20

// RemotePredictor 通过 HTTP JSON 调用远程分割服务
type RemotePredictor struct {
	endpoint string
	client   *http.Client
}

func NewRemotePredictor(endpoint string, client *http.Client) *RemotePredictor {
	if client == nil {
		client = http.DefaultClient
	}
	return &RemotePredictor{endpoint: endpoint, client: client}
}

func (p *RemotePredictor) Predict(ctx context.Context, req *model.PredictRequest) (*model.PredictResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("assist service returned HTTP %d", resp.StatusCode)
	}

	var out model.PredictResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	return &out, nil
}
