package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"credlock/pkg/domain"
)

// HTTPClient speaks the ledger node's JSON protocol. Transport failures and
// 5xx responses surface as Unavailable; 4xx responses carry a ledger-side
// refusal and surface as Rejected.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient builds a ledger client against the node at baseURL. The
// provided http.Client controls per-call transport timeouts.
func NewHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{baseURL: baseURL, http: httpClient}
}

type rpcRequest struct {
	Op   Op             `json:"op"`
	Args map[string]any `json:"args,omitempty"`
}

type rpcError struct {
	Error string `json:"error"`
}

func (c *HTTPClient) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling ledger request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building ledger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Unavailable(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Unavailable(err)
	}

	switch {
	case resp.StatusCode >= 500:
		return Unavailable(fmt.Errorf("ledger node returned %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		var refusal rpcError
		if err := json.Unmarshal(raw, &refusal); err != nil || refusal.Error == "" {
			return Rejected(fmt.Sprintf("ledger node returned %d", resp.StatusCode))
		}
		return Rejected(refusal.Error)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return Unavailable(fmt.Errorf("decoding ledger response: %w", err))
		}
	}
	return nil
}

func (c *HTTPClient) SubmitTransaction(ctx context.Context, op Op, args map[string]any) (TxRef, error) {
	var out struct {
		TxRef TxRef `json:"tx_ref"`
	}
	if err := c.post(ctx, "/submit", rpcRequest{Op: op, Args: args}, &out); err != nil {
		return "", err
	}
	if out.TxRef == "" {
		return "", Unavailable(fmt.Errorf("ledger node returned empty tx ref"))
	}
	return out.TxRef, nil
}

func (c *HTTPClient) AwaitFinality(ctx context.Context, txRef TxRef) (BlockRef, error) {
	var out struct {
		BlockRef BlockRef `json:"block_ref"`
	}
	body := map[string]any{"tx_ref": string(txRef)}
	if err := c.post(ctx, "/finality", body, &out); err != nil {
		return "", err
	}
	if out.BlockRef == "" {
		return "", Unavailable(fmt.Errorf("ledger node returned empty block ref"))
	}
	return out.BlockRef, nil
}

func (c *HTTPClient) QueryState(ctx context.Context, op Op, args map[string]any) (json.RawMessage, error) {
	var out struct {
		Result json.RawMessage `json:"result"`
	}
	if err := c.post(ctx, "/query", rpcRequest{Op: op, Args: args}, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

func (c *HTTPClient) HasRole(ctx context.Context, wallet domain.WalletAddress) (bool, error) {
	var out struct {
		HasRole bool `json:"has_role"`
	}
	body := map[string]any{"wallet": wallet.String()}
	if err := c.post(ctx, "/role", body, &out); err != nil {
		return false, err
	}
	return out.HasRole, nil
}

var _ Client = (*HTTPClient)(nil)
