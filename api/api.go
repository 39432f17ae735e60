// Package api is the REST and WebSocket edge: it decodes requests into
// tokendto shapes, dispatches to the Tokens Orchestrator, and translates
// its error taxonomy into HTTP status codes. It knows nothing about ABI
// mapping, locators, or the event-stream protocol.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/traceid"
	"github.com/goware/logger"
	"github.com/gorilla/websocket"

	"github.com/hyperledger/firefly-tokens-connector/chainconn"
	jsoncodec "github.com/hyperledger/firefly-tokens-connector/sonic"
	"github.com/hyperledger/firefly-tokens-connector/tokendto"
	"github.com/hyperledger/firefly-tokens-connector/tokensvc"
	"github.com/hyperledger/firefly-tokens-connector/wsproxy"
)

// Orchestrator is the operation surface the API dispatches to.
type Orchestrator interface {
	CreatePool(ctx context.Context, dto tokendto.TokenPool) (any, error)
	ActivatePool(ctx context.Context, dto tokendto.TokenPoolActivate) (tokendto.TokenPoolEvent, error)
	Mint(ctx context.Context, dto tokendto.TokenMint) (tokendto.AsyncAck, error)
	Transfer(ctx context.Context, dto tokendto.TokenTransfer) (tokendto.AsyncAck, error)
	Burn(ctx context.Context, dto tokendto.TokenBurn) (tokendto.AsyncAck, error)
	Approval(ctx context.Context, dto tokendto.TokenApproval) (tokendto.AsyncAck, error)
	Balance(ctx context.Context, q tokendto.BalanceQuery) (tokendto.BalanceResponse, error)
	GetReceipt(ctx context.Context, id string) ([]byte, error)
}

var _ Orchestrator = (*tokensvc.Service)(nil)

// Pinger is consulted by the readiness probe; *chainconn.Connector
// satisfies it through its Ping method, and main.go passes the connector
// in. Kept minimal: a readiness probe only needs to know the gateway is
// reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// WSProxy is the subset of *wsproxy.Proxy the edge drives a connection
// through.
type WSProxy interface {
	Accept(conn wsproxy.Conn) *wsproxy.Client
}

var _ WSProxy = (*wsproxy.Proxy)(nil)

// EventIngress is implemented by *eventstream.Client: it is the webhook
// target EthConnect's event-stream service calls back into with event
// batches and transaction receipts.
type EventIngress interface {
	HandleEventBatch(ctx context.Context, batch tokendto.EventBatch)
	HandleReceipt(ctx context.Context, receipt tokendto.Receipt)
}

// Server wires an Orchestrator and a WSProxy onto an HTTP router.
type Server struct {
	log                logger.Logger
	svc                Orchestrator
	proxy              WSProxy
	pinger             Pinger
	ingress            EventIngress
	passthroughHeaders []string
	upgrader           websocket.Upgrader

	router chi.Router
}

// New builds a Server. pinger may be nil, which makes /health/readiness
// always report healthy. The webhook routes are not registered here; they
// are added only by WithEventIngress (a Server built without it, as in
// tests, serves no webhook routes).
func New(svc Orchestrator, proxy WSProxy, pinger Pinger, passthroughHeaders []string, log logger.Logger) *Server {
	s := &Server{
		log:                log,
		svc:                svc,
		proxy:              proxy,
		pinger:             pinger,
		passthroughHeaders: passthroughHeaders,
		upgrader:           websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(r *http.Request) bool { return true }},
	}
	s.router = s.buildRouter()
	return s
}

// WithEventIngress registers the webhook routes EthConnect's event-stream
// service posts batches and receipts to. Separate from New since the
// ingress collaborator is optional wiring, not part of the operation
// surface under test in api_test.go.
func (s *Server) WithEventIngress(ingress EventIngress) *Server {
	s.ingress = ingress
	s.router.Post("/api/events", s.handleEventWebhook)
	s.router.Post("/api/receipts", s.handleReceiptWebhook)
	return s
}

func (s *Server) handleEventWebhook(w http.ResponseWriter, r *http.Request) {
	batch, err := decodeJSON[tokendto.EventBatch](r)
	if err != nil {
		http.Error(w, "malformed event batch: "+err.Error(), http.StatusBadRequest)
		return
	}
	batch.AckToken = strconv.FormatUint(batch.BatchNumber, 10)
	s.ingress.HandleEventBatch(r.Context(), batch)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReceiptWebhook(w http.ResponseWriter, r *http.Request) {
	receipt, err := decodeJSON[tokendto.Receipt](r)
	if err != nil {
		http.Error(w, "malformed receipt: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.ingress.HandleReceipt(r.Context(), receipt)
	w.WriteHeader(http.StatusOK)
}

// ServeHTTP lets a Server be used directly as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(traceid.Middleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.passthroughMiddleware)

	r.Post("/createpool", s.handleCreatePool)
	r.Post("/activatepool", s.handleActivatePool)
	r.Post("/mint", s.handleMint)
	r.Post("/transfer", s.handleTransfer)
	r.Post("/burn", s.handleBurn)
	r.Post("/approval", s.handleApproval)
	r.Get("/balance", s.handleBalance)
	r.Get("/receipt/{id}", s.handleGetReceipt)

	r.Get("/health/liveness", s.handleLiveness)
	r.Get("/health/readiness", s.handleReadiness)

	r.Get("/api/ws", s.handleWS)

	return r
}

// passthroughMiddleware stashes configured inbound headers onto the
// request context so chainconn picks them up on the outbound call.
func (s *Server) passthroughMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		for _, h := range s.passthroughHeaders {
			if v := r.Header.Get(h); v != "" {
				ctx = chainconn.WithPassthroughValue(ctx, h, v)
			}
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			s.log.Warnf("api: readiness probe failed: %v", err)
			http.Error(w, "upstream gateway unreachable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("api: websocket upgrade failed: %v", err)
		return
	}
	client := s.proxy.Accept(conn)
	client.Serve(r.Context())
}

func decodeJSON[T any](r *http.Request) (T, error) {
	var v T
	err := jsoncodec.Config.NewDecoder(r.Body).Decode(&v)
	return v, err
}

func (s *Server) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	dto, err := decodeJSON[tokendto.TokenPool](r)
	if err != nil {
		writeError(w, &tokensvc.ValidationError{Message: "malformed request body: " + err.Error()})
		return
	}
	result, err := s.svc.CreatePool(r.Context(), dto)
	if err != nil {
		writeError(w, err)
		return
	}
	switch result.(type) {
	case tokendto.AsyncAck:
		writeJSON(w, http.StatusAccepted, result)
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleActivatePool(w http.ResponseWriter, r *http.Request) {
	dto, err := decodeJSON[tokendto.TokenPoolActivate](r)
	if err != nil {
		writeError(w, &tokensvc.ValidationError{Message: "malformed request body: " + err.Error()})
		return
	}
	event, err := s.svc.ActivatePool(r.Context(), dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	dto, err := decodeJSON[tokendto.TokenMint](r)
	if err != nil {
		writeError(w, &tokensvc.ValidationError{Message: "malformed request body: " + err.Error()})
		return
	}
	ack, err := s.svc.Mint(r.Context(), dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ack)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	dto, err := decodeJSON[tokendto.TokenTransfer](r)
	if err != nil {
		writeError(w, &tokensvc.ValidationError{Message: "malformed request body: " + err.Error()})
		return
	}
	ack, err := s.svc.Transfer(r.Context(), dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ack)
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	dto, err := decodeJSON[tokendto.TokenBurn](r)
	if err != nil {
		writeError(w, &tokensvc.ValidationError{Message: "malformed request body: " + err.Error()})
		return
	}
	ack, err := s.svc.Burn(r.Context(), dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ack)
}

func (s *Server) handleApproval(w http.ResponseWriter, r *http.Request) {
	dto, err := decodeJSON[tokendto.TokenApproval](r)
	if err != nil {
		writeError(w, &tokensvc.ValidationError{Message: "malformed request body: " + err.Error()})
		return
	}
	ack, err := s.svc.Approval(r.Context(), dto)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ack)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	q := tokendto.BalanceQuery{
		Account:     r.URL.Query().Get("account"),
		PoolLocator: r.URL.Query().Get("poolLocator"),
		TokenIndex:  r.URL.Query().Get("tokenIndex"),
	}
	resp, err := s.svc.Balance(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	raw, err := s.svc.GetReceipt(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	jsoncodec.Config.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps the orchestrator's error taxonomy onto an HTTP status:
// ValidationError->400, NotFoundError->404, UpstreamError->500, anything
// else (a programmer error reaching the edge) ->500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch err.(type) {
	case *tokensvc.ValidationError:
		status = http.StatusBadRequest
	case *tokensvc.NotFoundError:
		status = http.StatusNotFound
	case *tokensvc.UpstreamError:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}
