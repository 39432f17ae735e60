package chainconn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goware/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/firefly-tokens-connector/abitype"
)

func newTestConnector(t *testing.T, handler http.HandlerFunc) (*Connector, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, WithLogger(logger.NewLogger(logger.LogLevel_WARN))), srv
}

func TestQuerySendsHeadersType(t *testing.T) {
	var captured rpcRequest
	conn, _ := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(QueryResult{Output: "42"})
	})

	out, err := conn.Query(context.Background(), "0x1", abitype.Method{Name: "balanceOf"}, []any{"0xabc"})
	require.NoError(t, err)
	assert.Equal(t, "42", out)
	assert.Equal(t, headerTypeQuery, captured.Headers.Type)
	assert.Equal(t, "0x1", captured.To)
}

func TestSendTransactionUsesFFTMURLWhenConfigured(t *testing.T) {
	fftmHit := false
	fftm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fftmHit = true
		json.NewEncoder(w).Encode(SendResult{ID: "resp-id"})
	}))
	defer fftm.Close()

	baseHit := false
	base := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		baseHit = true
	}))
	defer base.Close()

	conn := New(base.URL, WithFFTMURL(fftm.URL), WithLogger(logger.NewLogger(logger.LogLevel_WARN)))
	id, err := conn.SendTransaction(context.Background(), "0xfrom", "0xto", "req-1", abitype.Method{Name: "mint"}, []any{"0xa", "5"})
	require.NoError(t, err)
	assert.Equal(t, "resp-id", id)
	assert.True(t, fftmHit)
	assert.False(t, baseHit)
}

func TestNonSuccessResponseSurfacesUpstreamError(t *testing.T) {
	conn, _ := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "reverted: insufficient balance"})
	})

	_, err := conn.Query(context.Background(), "0x1", abitype.Method{Name: "balanceOf"}, nil)
	require.Error(t, err)
	var uerr *UpstreamError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "reverted: insufficient balance", uerr.Message)
}

func TestGetReceiptReturnsStatusAndBody(t *testing.T) {
	conn, _ := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/reply/missing-id" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"not found"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	body, status, err := conn.GetReceipt(context.Background(), "missing-id")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "not found")
}

func TestPassthroughHeaderForwarded(t *testing.T) {
	var gotHeader string
	conn, _ := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Request-Id")
		json.NewEncoder(w).Encode(QueryResult{Output: "ok"})
	})
	conn.passthroughHeaders = []string{"X-Request-Id"}

	ctx := WithPassthroughValue(context.Background(), "X-Request-Id", "abc-123")
	_, err := conn.Query(ctx, "0x1", abitype.Method{Name: "name"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", gotHeader)
}

func TestPingReachesBaseURL(t *testing.T) {
	hit := false
	conn, _ := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.WriteHeader(http.StatusOK)
	})
	require.NoError(t, conn.Ping(context.Background()))
	assert.True(t, hit)
}
