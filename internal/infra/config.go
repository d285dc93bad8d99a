package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// JobEndpoint holds the upstream URL and bearer credential for one remote job
// runner. The credential never leaves the proxy process.
type JobEndpoint struct {
	URL   string
	Token string
}

// Config represents the edge proxy configuration loaded from environment
// variables.
type Config struct {
	AppEnv string
	Port   string

	// Billing/backend collaborator fronted by the proxy.
	BackendBaseURL     string
	ServiceHeaderName  string
	ServiceHeaderValue string

	// Per-job-kind upstream runners, keyed by kind ("voice", "lipsync",
	// "faceswap"). Kinds without an entry are rejected at the proxy.
	JobEndpoints map[string]JobEndpoint

	// Object storage. When S3Bucket is empty the proxy runs in dev mode and
	// serves uploads from LocalStorageDir instead of presigning.
	S3Region             string
	S3Bucket             string
	StoragePublicBaseURL string
	LocalStorageDir      string
	PresignTTL           time.Duration

	// Empty means reflect any origin; presigned-URL flows come from
	// arbitrary local origins.
	AllowedOrigins []string

	HTTPReadTimeout       time.Duration
	HTTPReadHeaderTimeout time.Duration
	HTTPWriteTimeout      time.Duration
	HTTPIdleTimeout       time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:                getEnv("APP_ENV", "development"),
		Port:                  getEnv("PORT", "8787"),
		BackendBaseURL:        os.Getenv("BACKEND_BASE_URL"),
		ServiceHeaderName:     getEnv("SERVICE_HEADER_NAME", "X-Service-Token"),
		ServiceHeaderValue:    os.Getenv("SERVICE_HEADER_VALUE"),
		S3Region:              getEnv("S3_REGION", "auto"),
		S3Bucket:              os.Getenv("S3_BUCKET"),
		StoragePublicBaseURL:  strings.TrimRight(os.Getenv("STORAGE_PUBLIC_BASE_URL"), "/"),
		LocalStorageDir:       getEnv("LOCAL_STORAGE_DIR", "./data/objects"),
		PresignTTL:            time.Second * time.Duration(getEnvInt("PRESIGN_TTL_SECONDS", 900)),
		AllowedOrigins:        splitList(os.Getenv("ALLOWED_ORIGINS")),
		HTTPReadTimeout:       time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPReadHeaderTimeout: time.Second * time.Duration(getEnvInt("HTTP_READ_HEADER_TIMEOUT_SECONDS", 5)),
		HTTPWriteTimeout:      time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 300)),
		HTTPIdleTimeout:       time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		JobEndpoints:          map[string]JobEndpoint{},
	}

	for _, kind := range []string{"voice", "lipsync", "faceswap"} {
		prefix := strings.ToUpper(kind)
		url := strings.TrimRight(os.Getenv(prefix+"_ENDPOINT_URL"), "/")
		if url == "" {
			continue
		}
		cfg.JobEndpoints[kind] = JobEndpoint{
			URL:   url,
			Token: os.Getenv(prefix + "_ENDPOINT_TOKEN"),
		}
	}

	if cfg.BackendBaseURL == "" {
		return nil, fmt.Errorf("BACKEND_BASE_URL is required")
	}
	cfg.BackendBaseURL = strings.TrimRight(cfg.BackendBaseURL, "/")

	return cfg, nil
}

// ClientConfig carries the settings the pipeline CLI needs to reach the proxy.
type ClientConfig struct {
	ProxyBaseURL string
	Identity     string
}

// LoadClientConfig reads the client-side environment.
func LoadClientConfig() (*ClientConfig, error) {
	cfg := &ClientConfig{
		ProxyBaseURL: strings.TrimRight(getEnv("PROXY_BASE_URL", "http://localhost:8787"), "/"),
		Identity:     os.Getenv("PIPELINE_IDENTITY"),
	}
	if cfg.Identity == "" {
		return nil, fmt.Errorf("PIPELINE_IDENTITY is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
