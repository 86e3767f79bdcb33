package gateway

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRequestLogger_StampsExchange(t *testing.T) {
	f := NewRequestLogger(zap.NewNop(), false)

	r := httptest.NewRequest("POST", "/api/echo?x=1", nil)
	ex := NewExchange(r, nil)
	require.NoError(t, f.Run(r.Context(), ex))

	assert.NotEmpty(t, ex.RequestID)
	assert.Equal(t, "/api/echo", ex.PlatformPath)
	assert.Equal(t, "POST", ex.Method)
	assert.NotEmpty(t, ex.ClientIP)
	assert.False(t, ex.StartTime.IsZero())
	assert.False(t, ex.Rejected(), "the request logger never terminates")
}

func TestClientIP_Precedence(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		realIP     string
		remoteAddr string
		want       string
	}{
		{
			name:       "xff first entry wins",
			xff:        "203.0.113.7, 10.0.0.1",
			realIP:     "198.51.100.2",
			remoteAddr: "192.0.2.1:4312",
			want:       "203.0.113.7",
		},
		{
			name:       "xff single entry",
			xff:        " 203.0.113.9 ",
			remoteAddr: "192.0.2.1:4312",
			want:       "203.0.113.9",
		},
		{
			name:       "x-real-ip second",
			realIP:     "198.51.100.2",
			remoteAddr: "192.0.2.1:4312",
			want:       "198.51.100.2",
		},
		{
			name:       "peer address third",
			remoteAddr: "192.0.2.1:4312",
			want:       "192.0.2.1",
		},
		{
			name: "unknown last",
			want: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/x", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			ex := NewExchange(r, nil)
			assert.Equal(t, tt.want, clientIP(ex))
		})
	}
}
