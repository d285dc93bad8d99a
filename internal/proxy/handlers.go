package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"genpipe/internal/middleware"
)

type presignRequest struct {
	Intent      string `json:"intent"`
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Presign issues a write or read descriptor for an allowed storage key. In
// dev mode (no presigner configured) the descriptor points back at the
// proxy's own object routes.
func (p *Proxy) Presign(w http.ResponseWriter, r *http.Request) {
	var req presignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		p.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Intent != "upload" && req.Intent != "download" {
		p.error(w, http.StatusBadRequest, "bad_request", "unsupported intent")
		return
	}
	key := strings.TrimLeft(strings.TrimSpace(req.Key), "/")
	if !keyAllowed(key) {
		p.error(w, http.StatusBadRequest, "bad_request", "key prefix not allowed")
		return
	}

	ttl := p.cfg.PresignTTL
	if req.ExpiresIn >= 60 && float64(req.ExpiresIn) <= ttl.Seconds() {
		ttl = time.Duration(req.ExpiresIn) * time.Second
	}

	if p.presigner == nil {
		base := requestBaseURL(r)
		p.json(w, http.StatusOK, map[string]any{
			"url":        base + "/v1/objects/" + key,
			"key":        key,
			"public_url": base + "/v1/objects/" + key,
		})
		return
	}

	if req.Intent == "download" {
		readURL, err := p.presigner.PresignGet(r.Context(), key, ttl)
		if err != nil {
			p.logger.Error().Str("key", key).Err(err).Msg("presign failed")
			p.error(w, http.StatusInternalServerError, "presign_failed", "failed to presign download")
			return
		}
		p.json(w, http.StatusOK, map[string]any{"url": readURL, "key": key})
		return
	}

	writeURL, publicURL, err := p.presigner.PresignPut(r.Context(), key, req.ContentType, ttl)
	if err != nil {
		p.logger.Error().Str("key", key).Err(err).Msg("presign failed")
		p.error(w, http.StatusInternalServerError, "presign_failed", "failed to presign upload")
		return
	}
	resp := map[string]any{"url": writeURL, "key": key}
	if publicURL != "" {
		resp["public_url"] = publicURL
	}
	p.json(w, http.StatusOK, resp)
}

// ForwardTickets passes ticket operations through to the billing backend,
// attaching the service credential header when configured.
func (p *Proxy) ForwardTickets(w http.ResponseWriter, r *http.Request) {
	suffix := strings.TrimPrefix(r.URL.Path, "/v1")
	target := p.cfg.BackendBaseURL + suffix
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	p.forward(w, r, target, func(req *http.Request) {
		if p.cfg.ServiceHeaderValue != "" {
			req.Header.Set(p.cfg.ServiceHeaderName, p.cfg.ServiceHeaderValue)
		}
		req.Header.Set(middleware.HeaderRequestID, middleware.RequestIDFromContext(r.Context()))
	})
}

// ForwardJob routes a job operation to the runner for its kind, swapping any
// caller credential for the runner's bearer token.
func (p *Proxy) ForwardJob(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	endpoint, ok := p.cfg.JobEndpoints[kind]
	if !ok {
		p.error(w, http.StatusNotFound, "unknown_kind", fmt.Sprintf("no endpoint configured for %q", kind))
		return
	}
	op := chi.URLParam(r, "*")
	target := endpoint.URL + "/" + op
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	p.forward(w, r, target, func(req *http.Request) {
		req.Header.Del("Authorization")
		if endpoint.Token != "" {
			req.Header.Set("Authorization", "Bearer "+endpoint.Token)
		}
		req.Header.Set(middleware.HeaderRequestID, middleware.RequestIDFromContext(r.Context()))
	})
}

// FetchObject is the generic object passthrough: it proxies GET/HEAD/PUT to
// an absolute storage URL so presigned reads and writes work cross-origin
// without handing storage credentials to the caller.
func (p *Proxy) FetchObject(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	target, err := url.Parse(raw)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		p.error(w, http.StatusBadRequest, "bad_request", "url must be absolute http(s)")
		return
	}
	p.forward(w, r, target.String(), func(req *http.Request) {
		// Presigned URLs carry their own auth in the query string.
		req.Header.Del("Authorization")
	})
}

// ReadLocalObject serves a dev-mode object from the file store.
func (p *Proxy) ReadLocalObject(w http.ResponseWriter, r *http.Request) {
	if p.files == nil {
		p.error(w, http.StatusNotFound, "not_found", "local object store disabled")
		return
	}
	key := chi.URLParam(r, "*")
	data, err := p.files.Read(r.Context(), key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			p.error(w, http.StatusNotFound, "not_found", "object not found")
			return
		}
		p.error(w, http.StatusInternalServerError, "internal", "failed to read object")
		return
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	_, _ = w.Write(data)
}

// WriteLocalObject accepts a dev-mode object write.
func (p *Proxy) WriteLocalObject(w http.ResponseWriter, r *http.Request) {
	if p.files == nil {
		p.error(w, http.StatusNotFound, "not_found", "local object store disabled")
		return
	}
	key := chi.URLParam(r, "*")
	if !keyAllowed(key) {
		p.error(w, http.StatusBadRequest, "bad_request", "key prefix not allowed")
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		p.error(w, http.StatusBadRequest, "bad_request", "failed to read body")
		return
	}
	if _, err := p.files.Write(r.Context(), key, data); err != nil {
		p.logger.Error().Str("key", key).Err(err).Msg("local object write failed")
		p.error(w, http.StatusInternalServerError, "internal", "failed to store object")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func keyAllowed(key string) bool {
	if key == "" || strings.Contains(key, "..") {
		return false
	}
	for _, prefix := range allowedKeyPrefixes {
		if strings.HasPrefix(key, prefix) && len(key) > len(prefix) {
			return true
		}
	}
	return false
}

func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
