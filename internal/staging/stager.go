// Package staging moves caller-provided media into object storage ahead of a
// job launch: it obtains a write descriptor and performs the binary write.
package staging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"genpipe/internal/domain"
	"genpipe/internal/httpexec"
)

// DefaultTTLSeconds is the write descriptor expiry requested from storage.
const DefaultTTLSeconds = 900

// Presigner obtains a write descriptor for a storage key.
type Presigner interface {
	Presign(ctx context.Context, key, contentType string, expiresIn int) (*domain.UploadDescriptor, error)
}

// File is one caller-provided input held in memory for the duration of the
// attempt.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Stager stages files into object storage. Descriptors are created per file
// per attempt and never reused.
type Stager struct {
	presigner Presigner
	exec      *httpexec.Executor
	logger    zerolog.Logger
	ttl       int

	now    func() time.Time
	suffix func() string
}

// NewStager constructs a stager with the default descriptor TTL.
func NewStager(presigner Presigner, exec *httpexec.Executor, logger zerolog.Logger) *Stager {
	return &Stager{
		presigner: presigner,
		exec:      exec,
		logger:    logger,
		ttl:       DefaultTTLSeconds,
		now:       time.Now,
		suffix:    func() string { return uuid.NewString()[:8] },
	}
}

// Stage requests a write descriptor for the file under the key prefix.
func (s *Stager) Stage(ctx context.Context, f File, prefix string) (*domain.UploadDescriptor, error) {
	if len(f.Data) == 0 {
		return nil, errors.New("staging: empty file")
	}
	key := BuildKey(prefix, f.Name, s.now(), s.suffix())
	desc, err := s.presigner.Presign(ctx, key, f.ContentType, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("staging: presign %s: %w", key, err)
	}
	return desc, nil
}

// Write performs the binary write to the descriptor's write URL.
func (s *Stager) Write(ctx context.Context, f File, desc *domain.UploadDescriptor) error {
	header := http.Header{}
	if f.ContentType != "" {
		header.Set("Content-Type", f.ContentType)
	}
	_, err := s.exec.Do(ctx, httpexec.Request{
		Method: http.MethodPut,
		URL:    desc.WriteURL,
		Header: header,
		Body:   f.Data,
	}, httpexec.ControlPlan)
	if err != nil {
		return &domain.UploadError{Key: desc.Key, Err: err}
	}
	s.logger.Debug().Str("key", desc.Key).Int("bytes", len(f.Data)).Msg("staged upload written")
	return nil
}

// Upload stages and writes the file in one step.
func (s *Stager) Upload(ctx context.Context, f File, prefix string) (*domain.UploadDescriptor, error) {
	desc, err := s.Stage(ctx, f, prefix)
	if err != nil {
		return nil, err
	}
	if err := s.Write(ctx, f, desc); err != nil {
		return nil, err
	}
	return desc, nil
}

// BuildKey constructs a storage key: {prefix}/{unix_millis}-{suffix}-{name}.
// The uuid-derived suffix keeps two same-named uploads in the same
// millisecond from colliding.
func BuildKey(prefix, name string, now time.Time, suffix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "uploads"
	}
	return fmt.Sprintf("%s/%d-%s-%s", prefix, now.UnixMilli(), suffix, SanitizeFilename(name))
}

// SanitizeFilename strips any path component and replaces whitespace runs
// with hyphens.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	return strings.Join(strings.Fields(name), "-")
}
