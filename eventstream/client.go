package eventstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goware/breaker"
	"github.com/goware/logger"
	"github.com/hyperledger/firefly-tokens-connector/abitype"
	"github.com/hyperledger/firefly-tokens-connector/tokendto"
	jsoncodec "github.com/hyperledger/firefly-tokens-connector/sonic"
)

// Client is the EthConnect-backed Service implementation: it manages
// streams/subscriptions over REST and receives event/receipt callbacks
// through HandleEventBatch/HandleReceipt, which the REST edge's webhook
// routes (api.Server.WithEventIngress) call into.
type Client struct {
	log        logger.Logger
	baseURL    string
	httpClient *http.Client
	br         *breaker.Breaker

	events   chan tokendto.EventBatch
	receipts chan tokendto.Receipt

	mu      sync.Mutex
	streams map[string]Stream
}

// New builds a Client against the given EthConnect base URL. events and
// receipts are sized generously since a slow WS fan-out consumer must
// never block the single upstream callback goroutine mid-batch.
func New(baseURL string, log logger.Logger) *Client {
	return &Client{
		log:      log,
		baseURL:  strings.TrimRight(baseURL, "/"),
		br:       breaker.New(log, 1*time.Second, 2, 4),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		events:   make(chan tokendto.EventBatch, 64),
		receipts: make(chan tokendto.Receipt, 64),
		streams:  map[string]Stream{},
	}
}

func (c *Client) Events() <-chan tokendto.EventBatch { return c.events }
func (c *Client) Receipts() <-chan tokendto.Receipt   { return c.receipts }

// HandleEventBatch is invoked by the webhook edge when EthConnect posts a
// batch of events. It queues the batch on the buffered events channel,
// blocking only while that buffer is full (or until ctx is done); the
// channel keeps batches in arrival order for the single consumer.
func (c *Client) HandleEventBatch(ctx context.Context, batch tokendto.EventBatch) {
	select {
	case c.events <- batch:
	case <-ctx.Done():
	}
}

// HandleReceipt is invoked by the webhook edge when EthConnect posts a
// transaction receipt callback.
func (c *Client) HandleReceipt(ctx context.Context, receipt tokendto.Receipt) {
	select {
	case c.receipts <- receipt:
	case <-ctx.Done():
	}
}

func (c *Client) EnsureStream(ctx context.Context, topic string) (Stream, error) {
	c.mu.Lock()
	if s, ok := c.streams[topic]; ok {
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	existing, err := c.ListStreams(ctx)
	if err != nil {
		return Stream{}, err
	}
	for _, s := range existing {
		if s.Name == topic {
			c.cacheStream(topic, s)
			return s, nil
		}
	}

	var created Stream
	if err := c.do(ctx, http.MethodPost, "/eventstreams", map[string]any{"name": topic}, &created); err != nil {
		return Stream{}, fmt.Errorf("eventstream: failed to create stream %q: %w", topic, err)
	}
	c.cacheStream(topic, created)
	return created, nil
}

func (c *Client) cacheStream(topic string, s Stream) {
	c.mu.Lock()
	c.streams[topic] = s
	c.mu.Unlock()
}

func (c *Client) ListStreams(ctx context.Context) ([]Stream, error) {
	var streams []Stream
	if err := c.do(ctx, http.MethodGet, "/eventstreams", nil, &streams); err != nil {
		return nil, fmt.Errorf("eventstream: failed to list streams: %w", err)
	}
	return streams, nil
}

func (c *Client) ListSubscriptions(ctx context.Context, streamID string) ([]Subscription, error) {
	var subs []Subscription
	path := fmt.Sprintf("/subscriptions?stream=%s", streamID)
	if err := c.do(ctx, http.MethodGet, path, nil, &subs); err != nil {
		return nil, fmt.Errorf("eventstream: failed to list subscriptions for stream %s: %w", streamID, err)
	}
	return subs, nil
}

func (c *Client) GetOrCreateSubscription(ctx context.Context, stream Stream, eventABI abitype.Method, subscriptionName, contractAddress, fromBlock string) (Subscription, error) {
	if fromBlock == "" {
		fromBlock = "0"
	}

	existing, err := c.ListSubscriptions(ctx, stream.ID)
	if err != nil {
		return Subscription{}, err
	}
	for _, s := range existing {
		if s.Name == subscriptionName {
			return s, nil
		}
	}

	body := map[string]any{
		"name":      subscriptionName,
		"stream":    stream.ID,
		"address":   contractAddress,
		"event":     eventABI,
		"fromBlock": fromBlock,
	}

	var created Subscription
	if err := c.do(ctx, http.MethodPost, "/subscriptions", body, &created); err != nil {
		return Subscription{}, fmt.Errorf("eventstream: failed to create subscription %q: %w", subscriptionName, err)
	}
	return created, nil
}

// Ack acknowledges a delivered batch. The upstream service correlates this
// with the AckToken threaded through from the original callback.
func (c *Client) Ack(ctx context.Context, batchAckToken string) error {
	if batchAckToken == "" {
		return nil
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/eventstreams/ack/%s", batchAckToken), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, into any) error {
	var reader io.Reader
	if body != nil {
		payload, err := jsoncodec.Config.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	var res *http.Response
	err := c.br.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		res, err = c.httpClient.Do(req)
		return err
	})
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("eventstream: %s %s returned status %d: %s", method, path, res.StatusCode, string(raw))
	}
	if into == nil || len(raw) == 0 {
		return nil
	}
	return jsoncodec.Config.Unmarshal(raw, into)
}
