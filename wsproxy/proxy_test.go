package wsproxy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goware/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/firefly-tokens-connector/abitype"
	"github.com/hyperledger/firefly-tokens-connector/eventstream"
	"github.com/hyperledger/firefly-tokens-connector/poollocator"
	"github.com/hyperledger/firefly-tokens-connector/tokendto"
	"github.com/hyperledger/firefly-tokens-connector/tokenlistener"
)

// fakeConn is an in-memory Conn: reads replay a scripted inbound queue,
// writes are recorded for assertions.
type fakeConn struct {
	mu      sync.Mutex
	inbound chan any
	written []serverMessage
	closed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan any, 16)}
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, _ := v.(serverMessage)
	f.written = append(f.written, msg)
	return nil
}

func (f *fakeConn) ReadJSON(v any) error {
	msg, ok := <-f.inbound
	if !ok {
		return assertClosedErr
	}
	*(v.(*clientMessage)) = msg.(clientMessage)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.inbound)
	}
	return nil
}

func (f *fakeConn) snapshot() []serverMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]serverMessage, len(f.written))
	copy(out, f.written)
	return out
}

type sentinelErr struct{}

func (sentinelErr) Error() string { return "fake conn closed" }

var assertClosedErr error = sentinelErr{}

// fakeService is a no-op eventstream.Service whose channels the test
// drives directly.
type fakeService struct {
	events   chan tokendto.EventBatch
	receipts chan tokendto.Receipt
}

func newFakeService() *fakeService {
	return &fakeService{
		events:   make(chan tokendto.EventBatch, 8),
		receipts: make(chan tokendto.Receipt, 8),
	}
}

func (f *fakeService) EnsureStream(ctx context.Context, topic string) (eventstream.Stream, error) {
	return eventstream.Stream{}, nil
}
func (f *fakeService) ListStreams(ctx context.Context) ([]eventstream.Stream, error) { return nil, nil }
func (f *fakeService) ListSubscriptions(ctx context.Context, streamID string) ([]eventstream.Subscription, error) {
	return nil, nil
}
func (f *fakeService) GetOrCreateSubscription(ctx context.Context, stream eventstream.Stream, eventABI abitype.Method, subscriptionName, contractAddress, fromBlock string) (eventstream.Subscription, error) {
	return eventstream.Subscription{}, nil
}
func (f *fakeService) Events() <-chan tokendto.EventBatch   { return f.events }
func (f *fakeService) Receipts() <-chan tokendto.Receipt    { return f.receipts }
func (f *fakeService) Ack(ctx context.Context, batchID string) error { return nil }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// TestSwitchover is grounded on spec scenario S6: ws1 receives a batch,
// never acks, disconnects; ws2 must receive the same batch on start.
func TestSwitchover(t *testing.T) {
	log := logger.NewLogger(logger.LogLevel_WARN)
	locator := "address=0xabc&schema=ERC20WithData&type=fungible"
	listener := tokenlistener.New(nil, nil, "tokens")

	proxy := New(listener, nil, log)

	conn1 := newFakeConn()
	client1 := proxy.Accept(conn1)
	go client1.Serve(context.Background())

	conn1.inbound <- clientMessage{Type: "start", Namespace: locator}
	waitFor(t, func() bool { return len(conn1.snapshot()) >= 1 })

	payload := BatchPayload{Events: []tokendto.SemanticTokenEvent{{
		Event: tokendto.EventTokenMint,
		Data:  tokendto.TokenTransferEvent{PoolLocator: locator, Amount: "5"},
	}}}
	proxy.enqueue(locator, payload)

	waitFor(t, func() bool { return len(conn1.snapshot()) >= 2 })
	msgs := conn1.snapshot()
	require.Equal(t, "started", msgs[0].Event)
	require.Equal(t, "batch", msgs[1].Event)
	firstBatchID := msgs[1].ID
	require.NotEmpty(t, firstBatchID)

	// ws1 disconnects without acking.
	conn1.Close()
	waitFor(t, func() bool {
		proxy.mu.Lock()
		defer proxy.mu.Unlock()
		return proxy.namespaces[locator].primary == nil
	})

	conn2 := newFakeConn()
	client2 := proxy.Accept(conn2)
	go client2.Serve(context.Background())

	conn2.inbound <- clientMessage{Type: "start", Namespace: locator}
	waitFor(t, func() bool { return len(conn2.snapshot()) >= 2 })

	msgs2 := conn2.snapshot()
	require.Equal(t, "started", msgs2[0].Event)
	require.Equal(t, "batch", msgs2[1].Event)

	redelivered, ok := msgs2[1].Data.(BatchPayload)
	require.True(t, ok)
	assert.Equal(t, payload.Events, redelivered.Events)

	conn2.Close()
}

// TestRunDeliversUpstreamBatchToNamespace exercises the full Run loop:
// an upstream raw event batch arrives on the fake service, gets
// classified by the listener, and is fanned out to the client started on
// the matching namespace.
func TestRunDeliversUpstreamBatchToNamespace(t *testing.T) {
	log := logger.NewLogger(logger.LogLevel_WARN)
	topic := "tokens"
	locator := "address=0xabc&schema=ERC20WithData&type=fungible"
	listener := tokenlistener.New(nil, nil, topic)
	svc := newFakeService()

	proxy := New(listener, svc, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go proxy.Run(ctx)

	conn := newFakeConn()
	client := proxy.Accept(conn)
	go client.Serve(ctx)
	conn.inbound <- clientMessage{Type: "start", Namespace: locator}
	waitFor(t, func() bool { return len(conn.snapshot()) >= 1 })

	subID := poollocator.PackSubscriptionName(topic, poollocator.SubscriptionName{
		PoolLocator: locator,
		Event:       "Transfer",
	})
	svc.events <- tokendto.EventBatch{
		Events: []tokendto.RawEvent{{
			SubID:            subID,
			Signature:        "Transfer(address,address,uint256)",
			BlockNumber:      "1",
			TransactionIndex: "0",
			LogIndex:         "0",
			Data: map[string]any{
				"from":  "0x0000000000000000000000000000000000000000",
				"to":    "0xrecipient",
				"value": "5",
			},
		}},
		BatchNumber: 1,
	}

	waitFor(t, func() bool { return len(conn.snapshot()) >= 2 })
	msgs := conn.snapshot()
	require.Equal(t, "batch", msgs[1].Event)
	payload, ok := msgs[1].Data.(BatchPayload)
	require.True(t, ok)
	require.Len(t, payload.Events, 1)
	assert.Equal(t, tokendto.EventTokenMint, payload.Events[0].Event)
}

// TestProcessBatchDropsStaleRedelivery asserts a batchNumber at or below
// one already seen is acked but never fanned out again.
func TestProcessBatchDropsStaleRedelivery(t *testing.T) {
	log := logger.NewLogger(logger.LogLevel_WARN)
	locator := "address=0xabc&schema=ERC20WithData&type=fungible"
	listener := tokenlistener.New(nil, nil, "tokens")
	svc := newFakeService()
	proxy := New(listener, svc, log)

	conn := newFakeConn()
	client := proxy.Accept(conn)
	go client.Serve(context.Background())
	conn.inbound <- clientMessage{Type: "start", Namespace: locator}
	waitFor(t, func() bool { return len(conn.snapshot()) >= 1 })

	batch := tokendto.EventBatch{
		Events: []tokendto.RawEvent{{
			SubID:       poollocator.PackSubscriptionName("tokens", poollocator.SubscriptionName{PoolLocator: locator, Event: "Transfer"}),
			Signature:   "Transfer(address,address,uint256)",
			BlockNumber: "1", TransactionIndex: "0", LogIndex: "0",
			Data: map[string]any{"from": "0x0000000000000000000000000000000000000000", "to": "0xrecipient", "value": "5"},
		}},
		BatchNumber: 5,
	}
	proxy.processBatch(context.Background(), batch)
	waitFor(t, func() bool { return len(conn.snapshot()) >= 2 })

	proxy.processBatch(context.Background(), batch)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, conn.snapshot(), 2, "a stale redelivery must not be fanned out again")
}
