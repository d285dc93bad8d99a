// Package proxy implements the stateless edge router that fronts the billing
// backend and the per-kind job runners: it rewrites paths, injects service
// credentials the caller never holds, serves storage presigns, and streams
// everything else through unmodified.
package proxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"genpipe/internal/infra"
	"genpipe/internal/storage"
)

// allowedKeyPrefixes is the set of storage namespaces callers may presign.
var allowedKeyPrefixes = []string{"uploads/", "results/"}

// Presigner issues write and read URLs for storage keys.
type Presigner interface {
	PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (writeURL, publicURL string, err error)
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)
}

// Proxy holds the edge router's collaborators. Presigner may be nil, in which
// case presigns fall back to the local file store (dev mode).
type Proxy struct {
	cfg       *infra.Config
	presigner Presigner
	files     *storage.FileStore
	client    *http.Client
	logger    zerolog.Logger
}

// Options configures the proxy.
type Options struct {
	Config     *infra.Config
	Presigner  Presigner
	Files      *storage.FileStore
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// New constructs a proxy.
func New(opts Options) *Proxy {
	client := opts.HTTPClient
	if client == nil {
		// Long timeout: run submissions against cold workers are slow.
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Proxy{
		cfg:       opts.Config,
		presigner: opts.Presigner,
		files:     opts.Files,
		client:    client,
		logger:    opts.Logger,
	}
}

func (p *Proxy) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (p *Proxy) error(w http.ResponseWriter, code int, slug, message string) {
	p.json(w, code, map[string]any{"error": slug, "detail": message})
}

// Health reports liveness.
func (p *Proxy) Health(w http.ResponseWriter, r *http.Request) {
	p.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

// hop-by-hop headers are never forwarded in either direction.
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// forward streams the incoming request to targetURL, letting mutate adjust
// the outgoing headers, and copies the upstream response back verbatim.
func (p *Proxy) forward(w http.ResponseWriter, r *http.Request, targetURL string, mutate func(*http.Request)) {
	upstream, err := http.NewRequestWithContext(r.Context(), r.Method, targetURL, r.Body)
	if err != nil {
		p.error(w, http.StatusBadGateway, "bad_upstream", "failed to build upstream request")
		return
	}
	copyHeaders(upstream.Header, r.Header)
	upstream.Header.Del("Origin")
	upstream.Header.Del("Cookie")
	if mutate != nil {
		mutate(upstream)
	}

	resp, err := p.client.Do(upstream)
	if err != nil {
		p.logger.Warn().Str("target", targetURL).Err(err).Msg("upstream request failed")
		p.error(w, http.StatusBadGateway, "upstream_unreachable", err.Error())
		return
	}
	defer resp.Body.Close()

	header := w.Header()
	for name, values := range resp.Header {
		if skipResponseHeader(name) {
			continue
		}
		for _, v := range values {
			header.Add(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		p.logger.Debug().Str("target", targetURL).Err(err).Msg("response stream interrupted")
	}
}

func copyHeaders(dst, src http.Header) {
	for name, values := range src {
		if isHopHeader(name) {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}

func isHopHeader(name string) bool {
	for _, h := range hopHeaders {
		if strings.EqualFold(name, h) {
			return true
		}
	}
	return false
}

// skipResponseHeader drops hop-by-hop headers and the upstream's CORS answer;
// the proxy's own CORS middleware is authoritative.
func skipResponseHeader(name string) bool {
	if isHopHeader(name) {
		return true
	}
	return strings.HasPrefix(strings.ToLower(name), "access-control-")
}
