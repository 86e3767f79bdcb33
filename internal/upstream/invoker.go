// Package upstream executes the reverse-proxy call: it builds the
// target URL, applies the gateway's header policy, injects upstream
// credentials, and invokes the provider under the interface deadline.
package upstream

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xiaoxin/api-gateway/internal/authcfg"
	"github.com/xiaoxin/api-gateway/internal/domain"
)

// forwardedByValue identifies the gateway to upstream providers.
const forwardedByValue = "XiaoXin-API-Gateway"

// gatewayHeaders are the gateway-internal request headers stripped
// before forwarding. Matched case-insensitively.
var gatewayHeaders = []string{
	"accessKey",
	"sign",
	"nonce",
	"timestamp",
	"body",
	"x-content-sha256",
	"x-sign-version",
}

// Result is the upstream response handed to the response writer.
type Result struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the upstream answered with a 2xx status.
func (r *Result) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Invoker calls upstream providers over a shared pooled client.
type Invoker struct {
	client         *http.Client
	codec          *authcfg.Codec
	defaultTimeout time.Duration
	logRequests    bool
	logger         *zap.Logger
}

// NewInvoker creates an upstream invoker. codec may be nil when no
// master key is configured.
func NewInvoker(codec *authcfg.Codec, defaultTimeout time.Duration, logRequests bool, logger *zap.Logger) *Invoker {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Invoker{
		client:         &http.Client{Transport: transport},
		codec:          codec,
		defaultTimeout: defaultTimeout,
		logRequests:    logRequests,
		logger:         logger,
	}
}

// TargetURL joins the provider URL with the incoming query string.
func TargetURL(providerURL, rawQuery string) string {
	if rawQuery == "" {
		return providerURL
	}
	sep := "?"
	if strings.Contains(providerURL, "?") {
		sep = "&"
	}
	return providerURL + sep + rawQuery
}

// Do forwards the incoming request to the interface's provider. The
// method and body are forwarded verbatim; headers follow the policy
// in buildHeaders. The call runs under the interface timeout.
func (inv *Invoker) Do(ctx context.Context, in *http.Request, body []byte, rec *domain.InterfaceRecord, requestID string) (*Result, error) {
	target := TargetURL(rec.ProviderURL, in.URL.RawQuery)

	ctx, cancel := context.WithTimeout(ctx, rec.Timeout(inv.defaultTimeout))
	defer cancel()

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, in.Method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}

	if err := inv.buildHeaders(req, in, rec, requestID); err != nil {
		return nil, err
	}

	if inv.logRequests {
		inv.logger.Info("invoking upstream",
			zap.String("request_id", requestID),
			zap.String("method", in.Method),
			zap.String("target", rec.ProviderURL),
			zap.Int64("interface_id", rec.ID))
	}

	resp, err := inv.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	return &Result{StatusCode: resp.StatusCode, Body: raw}, nil
}

// buildHeaders copies the incoming headers minus the gateway-internal
// set, stamps the forwarding headers, and injects upstream auth.
func (inv *Invoker) buildHeaders(req, in *http.Request, rec *domain.InterfaceRecord, requestID string) error {
	for name, values := range in.Header {
		if isGatewayHeader(name) {
			continue
		}
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("X-Forwarded-By", forwardedByValue)
	req.Header.Set("X-Request-ID", requestID)

	return inv.injectAuth(req, rec)
}

func isGatewayHeader(name string) bool {
	for _, h := range gatewayHeaders {
		if strings.EqualFold(name, h) {
			return true
		}
	}
	return false
}

// apiKeyConfig, basicConfig and bearerConfig mirror the auth_config
// JSON documents stored per interface.
type apiKeyConfig struct {
	Key    string `json:"key"`
	Header string `json:"header"`
}

type basicConfig struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type bearerConfig struct {
	Token string `json:"token"`
}

// injectAuth adds the upstream credential header per the interface's
// auth type. Encrypted configs are opened with AAD bound to the
// record's identity triple.
func (inv *Invoker) injectAuth(req *http.Request, rec *domain.InterfaceRecord) error {
	if rec.AuthType == domain.AuthNone || rec.AuthType == "" {
		return nil
	}

	aad := authcfg.AAD(rec.ProviderURL, rec.PlatformPath, rec.Method)
	cfgJSON, err := inv.codec.Decrypt(rec.AuthConfig, aad)
	if err != nil {
		return fmt.Errorf("auth config for interface %d: %w", rec.ID, err)
	}

	switch rec.AuthType {
	case domain.AuthAPIKey:
		var cfg apiKeyConfig
		if err := json.Unmarshal([]byte(cfgJSON), &cfg); err != nil {
			return fmt.Errorf("parse api_key auth config: %w", err)
		}
		header := cfg.Header
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, cfg.Key)
	case domain.AuthBasic:
		var cfg basicConfig
		if err := json.Unmarshal([]byte(cfgJSON), &cfg); err != nil {
			return fmt.Errorf("parse basic auth config: %w", err)
		}
		cred := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		req.Header.Set("Authorization", "Basic "+cred)
	case domain.AuthBearer:
		var cfg bearerConfig
		if err := json.Unmarshal([]byte(cfgJSON), &cfg); err != nil {
			return fmt.Errorf("parse bearer auth config: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+cfg.Token)
	default:
		return fmt.Errorf("unknown auth type %q on interface %d", rec.AuthType, rec.ID)
	}
	return nil
}
