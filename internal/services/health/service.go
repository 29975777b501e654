package health

import (
	"context"
	"database/sql"
	"time"

	"cvscanner-backend/internal/shared/storage/db"
)

const pingTimeout = 2 * time.Second

// Database states reported by Status.
const (
	DBUp     = "up"
	DBDown   = "down"
	DBMemory = "memory"
)

// Report is the health payload.
type Report struct {
	OK            bool   `json:"ok"`
	Database      string `json:"database"`
	SchemaVersion int64  `json:"schemaVersion,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Service encapsulates health-related checks.
type Service struct {
	DB *sql.DB
	// Version reports the applied schema version; defaults to db.MigrationVersion.
	Version func(*sql.DB) (int64, error)
}

// NewService constructs a new health service. A nil database means the
// process runs on in-memory repositories.
func NewService(database *sql.DB) *Service {
	return &Service{DB: database, Version: db.MigrationVersion}
}

// Status pings the database and reports the schema version.
func (s *Service) Status(ctx context.Context) Report {
	if s == nil || s.DB == nil {
		return Report{OK: true, Database: DBMemory}
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := s.DB.PingContext(pingCtx); err != nil {
		return Report{OK: false, Database: DBDown, Error: err.Error()}
	}

	report := Report{OK: true, Database: DBUp}
	if s.Version != nil {
		if version, err := s.Version(s.DB); err == nil {
			report.SchemaVersion = version
		}
	}
	return report
}
