// Package wsproxy fans out semantic token events to connected WebSocket
// clients, grouped by namespace (one namespace per pool locator), with
// per-client batch acknowledgment and primary-client switchover on
// disconnect.
package wsproxy

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/goware/calc"
	"github.com/goware/channel"
	"github.com/goware/logger"

	"github.com/hyperledger/firefly-tokens-connector/eventstream"
	"github.com/hyperledger/firefly-tokens-connector/tokendto"
	"github.com/hyperledger/firefly-tokens-connector/tokenlistener"
)

// Conn is the minimal transport the proxy drives a client over; gorilla's
// *websocket.Conn already satisfies this.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

type clientState int

const (
	stateNew clientState = iota
	stateStarted
)

// BatchPayload is the "data" field of a batch message.
type BatchPayload struct {
	Events      []tokendto.SemanticTokenEvent `json:"events"`
	BatchNumber uint64                        `json:"batchNumber,omitempty"`
}

type startedPayload struct {
	Namespace string `json:"namespace"`
}

type serverMessage struct {
	Event string `json:"event"`
	ID    string `json:"id,omitempty"`
	Data  any    `json:"data,omitempty"`
}

type clientMessage struct {
	Type      string          `json:"type,omitempty"`
	Event     string          `json:"event,omitempty"`
	Namespace string          `json:"namespace,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type ackPayload struct {
	ID string `json:"id"`
}

type pendingBatch struct {
	id      string
	payload BatchPayload
}

type namespaceState struct {
	primary *Client
	queue   []pendingBatch
}

// Proxy is the single consumer of an eventstream.Service's event and
// receipt channels, and the single place that owns namespace/client
// bookkeeping.
type Proxy struct {
	log      logger.Logger
	listener *tokenlistener.Listener
	svc      eventstream.Service

	mu              sync.Mutex
	namespaces      map[string]*namespaceState
	clients         map[string]*Client
	lastBatchNumber uint64
}

// New builds a Proxy. Run must be called for it to actually consume
// upstream events.
func New(listener *tokenlistener.Listener, svc eventstream.Service, log logger.Logger) *Proxy {
	return &Proxy{
		log:        log,
		listener:   listener,
		svc:        svc,
		namespaces: map[string]*namespaceState{},
		clients:    map[string]*Client{},
	}
}

// Run consumes the upstream event and receipt channels until ctx is
// cancelled. Events and receipts are handled on separate goroutines since
// they may interleave arbitrarily, but each individual event batch is
// processed to completion before the next is read.
func (p *Proxy) Run(ctx context.Context) {
	go p.runEvents(ctx)
	go p.runReceipts(ctx)
	<-ctx.Done()
}

func (p *Proxy) runEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-p.svc.Events():
			if !ok {
				return
			}
			p.processBatch(ctx, batch)
		}
	}
}

func (p *Proxy) runReceipts(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case receipt, ok := <-p.svc.Receipts():
			if !ok {
				return
			}
			p.broadcastReceipt(receipt)
		}
	}
}

// processBatch transforms and fans out one upstream batch. A durable
// event-stream service may redeliver a batch it already sent but never
// saw acked; batchNumber is monotonic, so a nonzero batchNumber at or
// below the highest one already seen is a stale replay, acked immediately
// without reprocessing to avoid double-delivering it to clients. A batch
// without a number (0) is never treated as stale.
func (p *Proxy) processBatch(ctx context.Context, batch tokendto.EventBatch) {
	p.mu.Lock()
	stale := batch.BatchNumber != 0 && batch.BatchNumber <= p.lastBatchNumber
	if !stale {
		p.lastBatchNumber = calc.Max(p.lastBatchNumber, batch.BatchNumber)
	}
	p.mu.Unlock()
	if stale {
		p.log.Warnf("wsproxy: dropping stale redelivered batch %d", batch.BatchNumber)
		if err := p.svc.Ack(ctx, batch.AckToken); err != nil {
			p.log.Warnf("wsproxy: failed to ack stale batch: %v", err)
		}
		return
	}

	semantic, err := p.listener.TransformBatch(ctx, batch.Events)
	if err != nil {
		p.log.Warnf("wsproxy: dropping upstream batch, transform failed: %v", err)
		return
	}

	grouped := map[string][]tokendto.SemanticTokenEvent{}
	for _, ev := range semantic {
		ns := namespaceOf(ev)
		if ns == "" {
			continue
		}
		grouped[ns] = append(grouped[ns], ev)
	}

	for ns, events := range grouped {
		p.enqueue(ns, BatchPayload{Events: events, BatchNumber: batch.BatchNumber})
	}

	if err := p.svc.Ack(ctx, batch.AckToken); err != nil {
		p.log.Warnf("wsproxy: failed to ack upstream batch: %v", err)
	}
}

// namespaceOf recovers the pool locator a semantic event belongs to, which
// doubles as its WS namespace.
func namespaceOf(ev tokendto.SemanticTokenEvent) string {
	switch data := ev.Data.(type) {
	case tokendto.TokenTransferEvent:
		return data.PoolLocator
	case tokendto.TokenApprovalEvent:
		return data.PoolLocator
	case map[string]any:
		locator, _ := data["poolLocator"].(string)
		return locator
	default:
		return ""
	}
}

func (p *Proxy) namespaceStateLocked(ns string) *namespaceState {
	state, ok := p.namespaces[ns]
	if !ok {
		state = &namespaceState{}
		p.namespaces[ns] = state
	}
	return state
}

func (p *Proxy) enqueue(ns string, payload BatchPayload) {
	p.mu.Lock()
	state := p.namespaceStateLocked(ns)
	pb := pendingBatch{id: uuid.NewString(), payload: payload}
	state.queue = append(state.queue, pb)
	primary := state.primary
	p.mu.Unlock()

	if primary != nil {
		primary.send(serverMessage{Event: "batch", ID: pb.id, Data: pb.payload})
	}
}

// Accept registers a new client over conn and returns it; call Serve to
// start driving it.
func (p *Proxy) Accept(conn Conn) *Client {
	c := &Client{
		id:    uuid.NewString(),
		conn:  conn,
		log:   p.log,
		proxy: p,
		out:   channel.NewUnboundedChan[any](2, 256, channel.Options{Logger: p.log, Label: "wsproxy:client"}),
	}
	go c.writeLoop()
	return c
}

func (p *Proxy) start(c *Client, namespace string) {
	p.mu.Lock()
	state := p.namespaceStateLocked(namespace)
	state.primary = c
	c.namespace = namespace
	c.state = stateStarted
	p.clients[c.id] = c

	// Reassign fresh message ids to whatever is still pending-ack for
	// this namespace, then snapshot it for redelivery below.
	for i := range state.queue {
		state.queue[i].id = uuid.NewString()
	}
	backlog := append([]pendingBatch(nil), state.queue...)
	p.mu.Unlock()

	c.send(serverMessage{Event: "started", Data: startedPayload{Namespace: namespace}})
	for _, pb := range backlog {
		c.send(serverMessage{Event: "batch", ID: pb.id, Data: pb.payload})
	}
}

func (p *Proxy) ack(c *Client, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.namespaces[c.namespace]
	if !ok {
		return
	}
	for i, pb := range state.queue {
		if pb.id == id {
			state.queue = append(state.queue[:i], state.queue[i+1:]...)
			return
		}
	}
}

func (p *Proxy) disconnect(c *Client) {
	p.mu.Lock()
	delete(p.clients, c.id)
	if c.namespace != "" {
		if state, ok := p.namespaces[c.namespace]; ok && state.primary == c {
			state.primary = nil
		}
	}
	p.mu.Unlock()
	c.out.Close()
}

func (p *Proxy) broadcastReceipt(receipt tokendto.Receipt) {
	p.mu.Lock()
	clients := make([]*Client, 0, len(p.clients))
	for _, c := range p.clients {
		clients = append(clients, c)
	}
	p.mu.Unlock()

	for _, c := range clients {
		c.send(serverMessage{Event: "receipt", Data: receipt})
	}
}
