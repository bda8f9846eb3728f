package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// ErrNotRunning is returned when nothing answers on the control address.
var ErrNotRunning = errors.New("scrollzoom agent is not running")

// Client calls a running agent.
type Client struct {
	url  string
	http *http.Client
	id   atomic.Int64
}

// NewClient returns a client for the agent listening on addr.
func NewClient(addr string) (*Client, error) {
	addr, err := NormalizeAddr(addr)
	if err != nil {
		return nil, err
	}
	return &Client{
		url:  "http://" + addr + "/rpc",
		http: &http.Client{Timeout: WriteTimeout},
	}, nil
}

// Call invokes method with params and decodes the result into out, which may
// be nil.
func (c *Client) Call(ctx context.Context, method string, params, out interface{}) error {
	req := JSONRPCRequest{JSONRPC: "2.0", Method: method, ID: c.id.Add(1)}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("encode params: %w", err)
		}
		req.Params = raw
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotRunning, err)
	}
	defer resp.Body.Close()

	var rpcResp JSONRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil || len(rpcResp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// Status fetches the agent status.
func (c *Client) Status(ctx context.Context) (StatusResult, error) {
	var st StatusResult
	err := c.Call(ctx, "status", nil, &st)
	return st, err
}

// SetEnabled switches the engine.
func (c *Client) SetEnabled(ctx context.Context, enable bool) (SwitchResult, error) {
	var res SwitchResult
	err := c.Call(ctx, "set_enabled", SwitchParams{Enabled: &enable}, &res)
	return res, err
}

// SetDotDashEnabled switches dot-dash drag recognition.
func (c *Client) SetDotDashEnabled(ctx context.Context, enable bool) (SwitchResult, error) {
	var res SwitchResult
	err := c.Call(ctx, "set_dotdash_enabled", SwitchParams{Enabled: &enable}, &res)
	return res, err
}

// Shutdown asks the agent to exit and waits until the address stops
// answering or ctx is done.
func (c *Client) Shutdown(ctx context.Context) error {
	if err := c.Call(ctx, "server.shutdown", nil, nil); err != nil {
		return err
	}
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if _, err := c.Status(ctx); errors.Is(err, ErrNotRunning) && ctx.Err() == nil {
				return nil
			}
		}
	}
}
