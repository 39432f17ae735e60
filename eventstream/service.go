// Package eventstream is the connector's collaborator boundary with the
// upstream, durable event-stream service: it creates/updates streams and
// subscriptions, and hands back a channel of event batches and one of
// transaction receipts. The upstream service owns replay and durability;
// this package only describes the shapes exchanged with it.
package eventstream

import (
	"context"

	"github.com/hyperledger/firefly-tokens-connector/abitype"
	"github.com/hyperledger/firefly-tokens-connector/tokendto"
)

// Stream is a durable, topic-scoped event stream registered upstream.
type Stream struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Subscription is one registered (stream, contract, event) binding.
type Subscription struct {
	ID          string `json:"id"`
	StreamID    string `json:"stream"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	Event       string `json:"event"`
	FromBlock   string `json:"fromBlock"`
}

// Service is the upstream event-stream collaborator. Implementations are
// expected to be process-singleton: the proxy is the single consumer of
// Events()/Receipts().
type Service interface {
	// EnsureStream returns the stream for topic, creating it upstream if
	// it does not already exist.
	EnsureStream(ctx context.Context, topic string) (Stream, error)

	// ListStreams enumerates every stream the upstream service currently
	// knows about, used by the startup migration check.
	ListStreams(ctx context.Context) ([]Stream, error)

	// ListSubscriptions enumerates every subscription registered against
	// a stream.
	ListSubscriptions(ctx context.Context, streamID string) ([]Subscription, error)

	// GetOrCreateSubscription registers (or returns the existing)
	// subscription binding a contract's event to this stream under
	// subscriptionName. fromBlock of "" defaults to "0" upstream.
	GetOrCreateSubscription(ctx context.Context, stream Stream, eventABI abitype.Method, subscriptionName, contractAddress, fromBlock string) (Subscription, error)

	// Events delivers batches of raw on-chain events, one batch at a
	// time, in the order the upstream service replays them. The proxy
	// must finish processing one batch before the next is sent.
	Events() <-chan tokendto.EventBatch

	// Receipts delivers transaction outcome callbacks, independent of the
	// event batch stream; these may interleave arbitrarily with batches.
	Receipts() <-chan tokendto.Receipt

	// Ack acknowledges a delivered batch so the upstream service can
	// advance past it.
	Ack(ctx context.Context, batchID string) error
}
