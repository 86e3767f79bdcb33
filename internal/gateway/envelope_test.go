package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xiaoxin/api-gateway/internal/upstream"
)

func TestWriteResponse_Success(t *testing.T) {
	ex := NewExchange(httptest.NewRequest("GET", "/api/echo", nil), nil)
	ex.RequestID = "req-1"
	ex.Upstream = &upstream.Result{StatusCode: 200, Body: []byte(`{"n":1}`)}

	w := httptest.NewRecorder()
	writeResponse(w, ex, zap.NewNop())

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, 200, body.Code)
	assert.Equal(t, "ok", body.Message)
	assert.Equal(t, map[string]any{"n": float64(1)}, body.Data)
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))
}

func TestWriteResponse_ForbiddenHasNoBody(t *testing.T) {
	ex := NewExchange(httptest.NewRequest("GET", "/x", nil), nil)
	ex.Reject(RejectForbidden())

	w := httptest.NewRecorder()
	writeResponse(w, ex, zap.NewNop())

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Body.Bytes())
	// Headers are stamped even on the empty-body path.
	assert.Equal(t, "XiaoXin-API-Gateway", w.Header().Get("X-Powered-By"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", w.Header().Get("Cache-Control"))
}

func TestWriteResponse_RejectionEnvelope(t *testing.T) {
	ex := NewExchange(httptest.NewRequest("GET", "/x", nil), nil)
	ex.Reject(RejectTooMany(KindRateLimited, "rate-limited, retry later"))

	w := httptest.NewRecorder()
	writeResponse(w, ex, zap.NewNop())

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, 429, body.Code)
	assert.Equal(t, "rate-limited, retry later", body.Message)
	assert.Nil(t, body.Data)
	assert.NotZero(t, body.Timestamp)
}

func TestWriteResponse_NeitherProxiedNorRejected(t *testing.T) {
	ex := NewExchange(httptest.NewRequest("GET", "/x", nil), nil)

	w := httptest.NewRecorder()
	writeResponse(w, ex, zap.NewNop())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestParseBody(t *testing.T) {
	assert.Nil(t, parseBody(nil))
	assert.Equal(t, map[string]any{"a": float64(1)}, parseBody([]byte(`{"a":1}`)))
	assert.Equal(t, []any{float64(1), float64(2)}, parseBody([]byte(`[1,2]`)))
	assert.Equal(t, "not json", parseBody([]byte("not json")))
	assert.Equal(t, float64(42), parseBody([]byte("42")))
}
