// Package chainconn is a thin RPC client against the EthConnect gateway.
// Its two core operations are a synchronous query and an asynchronous
// sendTransaction; it also fetches receipts and pings the gateway for
// readiness. It passes all signing responsibility to the gateway —
// this connector never holds or touches a private key.
package chainconn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/traceid"
	"github.com/go-chi/transport"
	"github.com/goware/breaker"
	"github.com/goware/logger"
	"github.com/goware/superr"
	"github.com/hyperledger/firefly-tokens-connector/abitype"
	jsoncodec "github.com/hyperledger/firefly-tokens-connector/sonic"
)

// ErrRequestFail is the sentinel wrapped around any transport or
// gateway-level failure, so callers can errors.Is against it regardless of
// the underlying cause.
var ErrRequestFail = errors.New("chainconn: request failed")

// UpstreamError is surfaced when EthConnect replies with a non-2xx status;
// Message carries the gateway's own error text (including contract revert
// reasons) verbatim.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("chainconn: upstream error (status %d): %s", e.StatusCode, e.Message)
}

const (
	headerTypeQuery           = "Query"
	headerTypeSendTransaction = "SendTransaction"
)

type requestHeaders struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

type rpcRequest struct {
	Headers requestHeaders `json:"headers"`
	From    string         `json:"from,omitempty"`
	To      string         `json:"to"`
	Method  abitype.Method `json:"method"`
	Params  []any          `json:"params"`
}

// QueryResult is the body of a successful synchronous query.
type QueryResult struct {
	Output any `json:"output"`
}

// SendResult is the body of a successful asynchronous submission.
type SendResult struct {
	ID string `json:"id"`
}

// Connector is the Blockchain Connector: it knows how to reach EthConnect
// (and, optionally, a distinct FFTM endpoint for transaction submission)
// and nothing about token semantics.
type Connector struct {
	log        logger.Logger
	baseURL    string
	fftmURL    string // falls back to baseURL when unset
	httpClient *http.Client
	br         *breaker.Breaker

	username string
	password string

	passthroughHeaders []string
	lastRequestID      uint64
}

// Option configures a Connector.
type Option func(*Connector)

// WithFFTMURL sets a distinct endpoint for transaction submission.
func WithFFTMURL(url string) Option {
	return func(c *Connector) { c.fftmURL = url }
}

// WithBasicAuth configures EthConnect basic auth credentials.
func WithBasicAuth(username, password string) Option {
	return func(c *Connector) { c.username, c.password = username, password }
}

// WithPassthroughHeaders names inbound request headers that should be
// forwarded verbatim to EthConnect (e.g. operator-configured tracing
// headers).
func WithPassthroughHeaders(headers []string) Option {
	return func(c *Connector) { c.passthroughHeaders = headers }
}

// WithLogger overrides the default logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Connector) { c.log = log }
}

// New builds a Connector against the given EthConnect base URL.
func New(baseURL string, opts ...Option) *Connector {
	c := &Connector{
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     logger.NewLogger(logger.LogLevel_INFO),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.br = breaker.New(c.log, 1*time.Second, 2, 4)

	c.httpClient = &http.Client{
		Timeout: 60 * time.Second,
		Transport: transport.Chain(http.DefaultTransport,
			traceid.Transport,
			transport.SetHeaderFunc("Authorization", func(req *http.Request) string {
				if c.username == "" {
					return ""
				}
				return basicAuthHeader(c.username, c.password)
			}),
		),
	}

	if c.fftmURL == "" {
		c.fftmURL = c.baseURL
	}
	return c
}

func basicAuthHeader(username, password string) string {
	req := &http.Request{Header: http.Header{}}
	req.SetBasicAuth(username, password)
	return req.Header.Get("Authorization")
}

// Query issues a synchronous read call to a contract method.
func (c *Connector) Query(ctx context.Context, to string, method abitype.Method, params []any) (any, error) {
	body := rpcRequest{
		Headers: requestHeaders{Type: headerTypeQuery},
		To:      to,
		Method:  method,
		Params:  params,
	}

	var result QueryResult
	if err := c.do(ctx, c.baseURL, body, &result); err != nil {
		return nil, err
	}
	return result.Output, nil
}

// SendTransaction submits an asynchronous state-changing call. The
// returned id will later be correlated with a receipt delivered out of
// band by the event-stream proxy.
func (c *Connector) SendTransaction(ctx context.Context, from, to, requestID string, method abitype.Method, params []any) (string, error) {
	body := rpcRequest{
		Headers: requestHeaders{Type: headerTypeSendTransaction, ID: requestID},
		From:    from,
		To:      to,
		Method:  method,
		Params:  params,
	}

	var result SendResult
	if err := c.do(ctx, c.fftmURL, body, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}

// GetReceipt fetches the latest status of a previously submitted
// transaction. A 404 from the gateway is left for the caller to translate
// into a domain NotFound.
func (c *Connector) GetReceipt(ctx context.Context, id string) ([]byte, int, error) {
	url := fmt.Sprintf("%s/reply/%s", c.fftmURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, superr.Wrap(ErrRequestFail, fmt.Errorf("chainconn: failed to build receipt request: %w", err))
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, superr.Wrap(ErrRequestFail, fmt.Errorf("chainconn: receipt request failed: %w", err))
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, res.StatusCode, superr.Wrap(ErrRequestFail, fmt.Errorf("chainconn: failed to read receipt body: %w", err))
	}
	return raw, res.StatusCode, nil
}

// Ping verifies the EthConnect gateway is reachable, for the readiness
// probe. It issues a bare GET against the base URL and only checks that
// the gateway answered at all, not that it returned 2xx.
func (c *Connector) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return superr.Wrap(ErrRequestFail, fmt.Errorf("chainconn: failed to build ping request: %w", err))
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return superr.Wrap(ErrRequestFail, fmt.Errorf("chainconn: ping failed: %w", err))
	}
	res.Body.Close()
	return nil
}

func (c *Connector) do(ctx context.Context, url string, body rpcRequest, into any) error {
	id := atomic.AddUint64(&c.lastRequestID, 1)
	c.log.Debugf("chainconn: request #%d headers.type=%s to=%s", id, body.Headers.Type, body.To)

	payload, err := jsoncodec.Config.Marshal(body)
	if err != nil {
		return superr.Wrap(ErrRequestFail, fmt.Errorf("chainconn: failed to marshal request: %w", err))
	}

	var res *http.Response
	err = c.br.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		for _, h := range c.passthroughHeaders {
			if v := ctx.Value(passthroughHeaderKey(h)); v != nil {
				if s, ok := v.(string); ok {
					req.Header.Set(h, s)
				}
			}
		}

		res, err = c.httpClient.Do(req)
		return err
	})
	if err != nil {
		return superr.Wrap(ErrRequestFail, fmt.Errorf("chainconn: request to %s failed: %w", url, err))
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return superr.Wrap(ErrRequestFail, fmt.Errorf("chainconn: failed to read response body: %w", err))
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg := extractErrorMessage(raw)
		return &UpstreamError{StatusCode: res.StatusCode, Message: msg}
	}

	if into == nil || len(raw) == 0 {
		return nil
	}
	if err := jsoncodec.Config.Unmarshal(raw, into); err != nil {
		return superr.Wrap(ErrRequestFail, fmt.Errorf("chainconn: failed to unmarshal response: %w", err))
	}
	return nil
}

// passthroughHeaderKey is the context key type used to stash per-request
// header values picked up at the REST edge before they reach the
// connector.
type passthroughHeaderKey string

// WithPassthroughValue stashes the value of a passthrough header on ctx so
// a later Query/SendTransaction call forwards it.
func WithPassthroughValue(ctx context.Context, header, value string) context.Context {
	return context.WithValue(ctx, passthroughHeaderKey(header), value)
}

func extractErrorMessage(raw []byte) string {
	var errBody struct {
		Error string `json:"error"`
	}
	if err := jsoncodec.Config.Unmarshal(raw, &errBody); err == nil && errBody.Error != "" {
		return errBody.Error
	}
	if len(raw) > 200 {
		return string(raw[:200])
	}
	return string(raw)
}
