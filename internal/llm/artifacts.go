package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"cvscanner-backend/internal/shared/telemetry"
	"cvscanner-backend/internal/shared/util"
)

// KeySaver is the part of the object store artifacts need.
type KeySaver interface {
	SaveWithKey(ctx context.Context, storageKey string, contentType string, r io.Reader) (int64, error)
}

// ArtifactWriter persists structured payloads for audit under
// artifacts/structured/<resumeId>_<UTC timestamp>_<random>.json.
// Keys never collide, so repeated runs for one record keep every payload.
type ArtifactWriter struct {
	Store  KeySaver
	Now    func() time.Time
	NewID  func() string
	Prefix string
}

// NewArtifactWriter returns a writer backed by store.
func NewArtifactWriter(store KeySaver) *ArtifactWriter {
	return &ArtifactWriter{Store: store}
}

// Key builds the artifact key for resumeID at time now.
func (w *ArtifactWriter) Key(resumeID string, now time.Time) string {
	prefix := w.Prefix
	if prefix == "" {
		prefix = "artifacts/structured"
	}
	newID := w.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	suffix := strings.ReplaceAll(newID(), "-", "")
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	stamp := now.UTC().Format("20060102T150405.000000000Z")
	return path.Join(prefix, fmt.Sprintf("%s_%s_%s.json", util.FileLabel(resumeID), stamp, suffix))
}

// Save writes raw and returns its key. Callers treat failures as non-fatal.
func (w *ArtifactWriter) Save(ctx context.Context, resumeID string, raw []byte) (string, error) {
	if w == nil || w.Store == nil {
		return "", fmt.Errorf("artifact store not configured")
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	key := w.Key(resumeID, now())
	if _, err := w.Store.SaveWithKey(ctx, key, "application/json", bytes.NewReader(raw)); err != nil {
		return "", fmt.Errorf("save artifact %s: %w", key, err)
	}
	return key, nil
}

// SaveBestEffort writes raw and logs instead of returning failures.
func (w *ArtifactWriter) SaveBestEffort(ctx context.Context, resumeID string, raw []byte) string {
	key, err := w.Save(ctx, resumeID, raw)
	if err != nil {
		telemetry.Warn("llm.artifact.write_failed", map[string]any{
			"resume_id": resumeID,
			"error":     err,
		})
		return ""
	}
	return key
}
