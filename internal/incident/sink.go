package incident

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sink persists one incident record as one retrievable unit and returns an
// opaque location for it. Implementations must never overwrite an existing
// record.
type Sink interface {
	Write(ctx context.Context, record Record) (string, error)
}

// FileSink writes each record as a standalone JSON document under a
// directory, one file per incident.
type FileSink struct {
	dir    string
	logger zerolog.Logger
}

// NewFileSink constructs a sink rooted at dir. The directory is created
// lazily on first write.
func NewFileSink(dir string, logger zerolog.Logger) *FileSink {
	return &FileSink{
		dir:    dir,
		logger: logger.With().Str("component", "incident_sink").Logger(),
	}
}

// Write persists the record and returns the file path. Filenames combine
// timestamp, window label, and a random suffix so concurrent writers in the
// same second cannot collide.
func (s *FileSink) Write(ctx context.Context, record Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create incidents dir: %w", err)
	}

	path := filepath.Join(s.dir, filename(record))

	payload, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal incident: %w", err)
	}

	// O_EXCL keeps the ledger append-only even if the name generator ever
	// repeats itself.
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create incident file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(payload); err != nil {
		return "", fmt.Errorf("write incident file: %w", err)
	}

	s.logger.Info().
		Str("path", path).
		Str("risk", string(record.RiskLevel)).
		Str("window", record.WindowLabel).
		Msg("incident recorded")

	return path, nil
}

func filename(record Record) string {
	stamp := record.Timestamp.UTC().Format("20060102T150405Z")
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("incident_%s_%s_%s.json", stamp, record.WindowLabel, suffix)
}

var _ Sink = (*FileSink)(nil)
