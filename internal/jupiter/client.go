// Package jupiter is a minimal client for the Jupiter swap aggregator API.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Default configuration values.
const (
	DefaultBaseURL     = "https://quote-api.jup.ag/v6"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 2
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultSlippageBps = 100
)

// Client talks to the aggregator quote and swap endpoints.
type Client struct {
	baseURL    string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates an aggregator client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		client:     &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		maxDelay:   DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-retryable error response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("aggregator error %d: %s", e.StatusCode, e.Body)
}

// QuoteRequest asks for an exact-in route.
type QuoteRequest struct {
	InputMint   string
	OutputMint  string
	Amount      uint64 // input base units
	SlippageBps int
}

// Quote is a priced route. Raw is sent back verbatim when requesting the swap.
type Quote struct {
	InputMint  string
	OutputMint string
	InAmount   uint64
	OutAmount  uint64
	// MinOutAmount is OutAmount less slippage; a landed swap delivers at least this.
	MinOutAmount   uint64
	PriceImpactPct string
	Raw            json.RawMessage
}

type quoteResponse struct {
	InputMint      string `json:"inputMint"`
	OutputMint     string `json:"outputMint"`
	InAmount       string `json:"inAmount"`
	OutAmount      string `json:"outAmount"`
	OtherAmount    string `json:"otherAmountThreshold"`
	PriceImpactPct string `json:"priceImpactPct"`
}

// Quote fetches the best route for req.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if req.Amount == 0 {
		return nil, fmt.Errorf("quote: amount must be positive")
	}
	slippage := req.SlippageBps
	if slippage <= 0 {
		slippage = DefaultSlippageBps
	}

	q := url.Values{}
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", strconv.FormatUint(req.Amount, 10))
	q.Set("slippageBps", strconv.Itoa(slippage))

	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("quote: unmarshal: %w", err)
	}

	inAmount, err := strconv.ParseUint(resp.InAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("quote: inAmount %q: %w", resp.InAmount, err)
	}
	outAmount, err := strconv.ParseUint(resp.OutAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("quote: outAmount %q: %w", resp.OutAmount, err)
	}
	minOut := outAmount
	if resp.OtherAmount != "" {
		minOut, err = strconv.ParseUint(resp.OtherAmount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("quote: otherAmountThreshold %q: %w", resp.OtherAmount, err)
		}
	}

	return &Quote{
		InputMint:      resp.InputMint,
		OutputMint:     resp.OutputMint,
		InAmount:       inAmount,
		OutAmount:      outAmount,
		MinOutAmount:   minOut,
		PriceImpactPct: resp.PriceImpactPct,
		Raw:            json.RawMessage(body),
	}, nil
}

type swapRequest struct {
	QuoteResponse           json.RawMessage `json:"quoteResponse"`
	UserPublicKey           string          `json:"userPublicKey"`
	WrapAndUnwrapSol        bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit bool            `json:"dynamicComputeUnitLimit"`
}

type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// SwapTransaction returns the base64 unsigned swap transaction for quote,
// paid and signed by userPublicKey.
func (c *Client) SwapTransaction(ctx context.Context, quote *Quote, userPublicKey string) (string, error) {
	if quote == nil || len(quote.Raw) == 0 {
		return "", fmt.Errorf("swap: missing quote")
	}

	payload, err := json.Marshal(swapRequest{
		QuoteResponse:           quote.Raw,
		UserPublicKey:           userPublicKey,
		WrapAndUnwrapSol:        true,
		DynamicComputeUnitLimit: true,
	})
	if err != nil {
		return "", fmt.Errorf("swap: marshal: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/swap", payload)
	if err != nil {
		return "", fmt.Errorf("swap: %w", err)
	}

	var resp swapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("swap: unmarshal: %w", err)
	}
	if resp.SwapTransaction == "" {
		return "", fmt.Errorf("swap: empty transaction")
	}
	return resp.SwapTransaction, nil
}

// do performs a request with retries and exponential backoff on transport
// errors, 429 and 5xx. Other 4xx responses return *APIError immediately.
func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = &APIError{StatusCode: resp.StatusCode, Body: string(body)}
			continue
		case resp.StatusCode != http.StatusOK:
			return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		}

		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
