package upstream

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xiaoxin/api-gateway/internal/authcfg"
	"github.com/xiaoxin/api-gateway/internal/domain"
)

func TestTargetURL(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		query    string
		want     string
	}{
		{"no query", "https://u.example.com/api", "", "https://u.example.com/api"},
		{"plain join", "https://u.example.com/api", "x=1&y=2", "https://u.example.com/api?x=1&y=2"},
		{"provider already has query", "https://u.example.com/api?v=2", "x=1", "https://u.example.com/api?v=2&x=1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TargetURL(tt.provider, tt.query))
		})
	}
}

func testRecord(providerURL string, authType domain.AuthType, authConfig string) *domain.InterfaceRecord {
	return &domain.InterfaceRecord{
		ID:           7,
		PlatformPath: "/api/echo",
		Method:       "POST",
		ProviderURL:  providerURL,
		Status:       domain.InterfaceEnabled,
		AuthType:     authType,
		AuthConfig:   authConfig,
	}
}

func TestInvoker_ForwardsRequest(t *testing.T) {
	var got *http.Request
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	inv := NewInvoker(nil, 5*time.Second, false, zap.NewNop())

	in := httptest.NewRequest("POST", "/api/echo?x=1", nil)
	in.Header.Set("accessKey", "ak")
	in.Header.Set("Sign", "sig")
	in.Header.Set("nonce", "n")
	in.Header.Set("Timestamp", "1")
	in.Header.Set("X-Content-Sha256", "d")
	in.Header.Set("x-sign-version", "1")
	in.Header.Set("Content-Type", "application/json")
	in.Header.Set("X-Custom", "kept")

	result, err := inv.Do(context.Background(), in, []byte(`{"a":1}`), testRecord(srv.URL, domain.AuthNone, ""), "req-1")
	require.NoError(t, err)
	assert.True(t, result.OK())
	assert.Equal(t, `{"ok":true}`, string(result.Body))

	assert.Equal(t, `{"a":1}`, gotBody)
	assert.Equal(t, "x=1", got.URL.RawQuery)

	// Gateway-internal headers are stripped regardless of case.
	for _, h := range []string{"accessKey", "sign", "nonce", "timestamp", "x-content-sha256", "x-sign-version"} {
		assert.Empty(t, got.Header.Get(h), "header %s must not reach the upstream", h)
	}
	assert.Equal(t, "kept", got.Header.Get("X-Custom"))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "XiaoXin-API-Gateway", got.Header.Get("X-Forwarded-By"))
	assert.Equal(t, "req-1", got.Header.Get("X-Request-ID"))
}

func TestInvoker_NonOKStatusIsNotTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	inv := NewInvoker(nil, 5*time.Second, false, zap.NewNop())
	result, err := inv.Do(context.Background(),
		httptest.NewRequest("GET", "/x", nil), nil, testRecord(srv.URL, domain.AuthNone, ""), "req-1")
	require.NoError(t, err)
	assert.False(t, result.OK())
	assert.Equal(t, http.StatusBadGateway, result.StatusCode)
}

func TestInvoker_InterfaceTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte("late"))
	}))
	defer srv.Close()

	timeoutMS := 50
	rec := testRecord(srv.URL, domain.AuthNone, "")
	rec.TimeoutMS = &timeoutMS

	inv := NewInvoker(nil, 5*time.Second, false, zap.NewNop())
	_, err := inv.Do(context.Background(),
		httptest.NewRequest("GET", "/x", nil), nil, rec, "req-1")
	assert.Error(t, err)
}

func TestInvoker_APIKeyAuth(t *testing.T) {
	var gotHeader http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
	}))
	defer srv.Close()

	inv := NewInvoker(nil, 5*time.Second, false, zap.NewNop())

	t.Run("default header", func(t *testing.T) {
		_, err := inv.Do(context.Background(), httptest.NewRequest("GET", "/x", nil), nil,
			testRecord(srv.URL, domain.AuthAPIKey, `{"key":"k_123"}`), "req-1")
		require.NoError(t, err)
		assert.Equal(t, "k_123", gotHeader.Get("X-API-Key"))
	})

	t.Run("custom header", func(t *testing.T) {
		_, err := inv.Do(context.Background(), httptest.NewRequest("GET", "/x", nil), nil,
			testRecord(srv.URL, domain.AuthAPIKey, `{"key":"k_456","header":"X-Token"}`), "req-1")
		require.NoError(t, err)
		assert.Equal(t, "k_456", gotHeader.Get("X-Token"))
	})
}

func TestInvoker_BasicAuth(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	inv := NewInvoker(nil, 5*time.Second, false, zap.NewNop())
	_, err := inv.Do(context.Background(), httptest.NewRequest("GET", "/x", nil), nil,
		testRecord(srv.URL, domain.AuthBasic, `{"username":"u","password":"p"}`), "req-1")
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(gotAuth, "Basic "))
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(gotAuth, "Basic "))
	require.NoError(t, err)
	assert.Equal(t, "u:p", string(decoded))
}

func TestInvoker_BearerAuth(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	inv := NewInvoker(nil, 5*time.Second, false, zap.NewNop())
	_, err := inv.Do(context.Background(), httptest.NewRequest("GET", "/x", nil), nil,
		testRecord(srv.URL, domain.AuthBearer, `{"token":"tok_1"}`), "req-1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok_1", gotAuth)
}

func TestInvoker_EncryptedAuthConfig(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	codec, err := authcfg.NewCodec([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	rec := testRecord(srv.URL, domain.AuthBearer, "")
	sealed, err := codec.Encrypt(`{"token":"tok_sealed"}`,
		authcfg.AAD(rec.ProviderURL, rec.PlatformPath, rec.Method))
	require.NoError(t, err)
	rec.AuthConfig = sealed

	inv := NewInvoker(codec, 5*time.Second, false, zap.NewNop())
	_, err = inv.Do(context.Background(), httptest.NewRequest("GET", "/x", nil), nil, rec, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok_sealed", gotAuth)
}

func TestInvoker_EncryptedAuthConfigWithoutKeyFails(t *testing.T) {
	codec, err := authcfg.NewCodec([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	rec := testRecord("https://u.example.com/x", domain.AuthBearer, "")
	sealed, err := codec.Encrypt(`{"token":"t"}`,
		authcfg.AAD(rec.ProviderURL, rec.PlatformPath, rec.Method))
	require.NoError(t, err)
	rec.AuthConfig = sealed

	inv := NewInvoker(nil, 5*time.Second, false, zap.NewNop())
	_, err = inv.Do(context.Background(), httptest.NewRequest("GET", "/x", nil), nil, rec, "req-1")
	assert.ErrorIs(t, err, authcfg.ErrNoMasterKey)
}
