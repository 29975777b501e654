package resumes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"cvscanner-backend/resume/model"
)

const resumeColumns = `id, owner_document, image_key, image_mime_type, file_name, extracted_text, extraction_method,
       formatted, analysis_state, analysis_message, analysis_kind, analysis_at, stage,
       generated_document_path, created_at, updated_at`

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB  *sql.DB
	Now func() time.Time
}

func (r *PGRepo) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// Create inserts a new record.
func (r *PGRepo) Create(ctx context.Context, res Resume) (Resume, error) {
	if strings.TrimSpace(res.ID) == "" {
		res.ID = uuid.NewString()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = r.now()
	}
	res.UpdatedAt = res.CreatedAt
	if res.Stage == "" {
		res.Stage = StageRaw
	}
	if res.AnalysisStatus.State == "" {
		res.AnalysisStatus.State = StatePending
	}
	if res.Formatted != nil || res.AnalysisStatus.State == StateDone || res.GeneratedDocumentPath != "" {
		return Resume{}, invariantError("records are created without derived data")
	}

	const query = `
INSERT INTO resumes (
	id, owner_document, image_key, image_mime_type, file_name, extracted_text, extraction_method,
	analysis_state, analysis_message, stage, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.DB.ExecContext(ctx, query,
		res.ID,
		res.OwnerDocument,
		res.ImageKey,
		res.ImageMimeType,
		res.FileName,
		nullString(res.ExtractedText),
		nullString(res.ExtractionMethod),
		string(res.AnalysisStatus.State),
		nullString(res.AnalysisStatus.Message),
		string(res.Stage),
		res.CreatedAt,
		res.UpdatedAt,
	)
	if err != nil {
		return Resume{}, mapPGError(err)
	}
	return res, nil
}

// Update applies patch with one UPDATE statement, so the formatted payload and
// its DONE status land in the same write.
func (r *PGRepo) Update(ctx context.Context, id string, patch Patch) (Resume, error) {
	if err := patch.Validate(); err != nil {
		return Resume{}, err
	}

	var (
		state, message, kind any
		at                   any
		formatted            any
		stage                any
		docPath              any
	)
	if patch.AnalysisStatus != nil {
		state = string(patch.AnalysisStatus.State)
		message = nullString(patch.AnalysisStatus.Message)
		kind = nullString(patch.AnalysisStatus.Kind)
		if patch.AnalysisStatus.At != nil {
			at = patch.AnalysisStatus.At.UTC()
		}
	}
	if patch.Formatted != nil {
		payload, err := json.Marshal(patch.Formatted.Normalize())
		if err != nil {
			return Resume{}, fmt.Errorf("encode formatted: %w", err)
		}
		formatted = string(payload)
	}
	if patch.Stage != nil {
		stage = string(*patch.Stage)
	}
	if patch.GeneratedDocumentPath != nil {
		docPath = *patch.GeneratedDocumentPath
	}
	clearDoc := patch.ClearGeneratedDocument || patch.Formatted != nil

	query := `
UPDATE resumes SET
	extracted_text = COALESCE(NULLIF(extracted_text, ''), $2::text),
	extraction_method = COALESCE(NULLIF(extraction_method, ''), $3::text),
	stage = COALESCE($4::text, stage),
	analysis_state = COALESCE($5::text, analysis_state),
	analysis_message = CASE WHEN $5::text IS NULL THEN analysis_message ELSE $6::text END,
	analysis_kind = CASE WHEN $5::text IS NULL THEN analysis_kind ELSE $7::text END,
	analysis_at = CASE WHEN $5::text IS NULL THEN analysis_at ELSE $8::timestamptz END,
	formatted = COALESCE($9::jsonb, formatted),
	generated_document_path = CASE WHEN $10::boolean THEN NULL ELSE COALESCE($11::text, generated_document_path) END,
	updated_at = $12
WHERE id = $1
RETURNING ` + resumeColumns

	row := r.DB.QueryRowContext(ctx, query,
		id,
		ptrValue(patch.ExtractedText),
		ptrValue(patch.ExtractionMethod),
		stage,
		state,
		message,
		kind,
		at,
		formatted,
		clearDoc,
		docPath,
		r.now(),
	)
	res, err := scanResume(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Resume{}, ErrNotFound
		}
		return Resume{}, mapPGError(err)
	}
	return res, nil
}

// GetByID returns a record by ID.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Resume, error) {
	query := `SELECT ` + resumeColumns + ` FROM resumes WHERE id = $1 LIMIT 1`
	res, err := scanResume(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Resume{}, ErrNotFound
		}
		return Resume{}, mapPGError(err)
	}
	return res, nil
}

// List returns records ordered by created_at descending.
func (r *PGRepo) List(ctx context.Context, limit, offset int) ([]Resume, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query := `SELECT ` + resumeColumns + ` FROM resumes ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`
	rows, err := r.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Resume{}
	for rows.Next() {
		res, err := scanResume(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResume(row rowScanner) (Resume, error) {
	var res Resume
	var (
		extractedText    sql.NullString
		extractionMethod sql.NullString
		formatted        []byte
		state            string
		message          sql.NullString
		kind             sql.NullString
		at               sql.NullTime
		stage            string
		docPath          sql.NullString
	)
	err := row.Scan(
		&res.ID,
		&res.OwnerDocument,
		&res.ImageKey,
		&res.ImageMimeType,
		&res.FileName,
		&extractedText,
		&extractionMethod,
		&formatted,
		&state,
		&message,
		&kind,
		&at,
		&stage,
		&docPath,
		&res.CreatedAt,
		&res.UpdatedAt,
	)
	if err != nil {
		return Resume{}, err
	}
	res.ExtractedText = extractedText.String
	res.ExtractionMethod = extractionMethod.String
	res.AnalysisStatus = AnalysisStatus{State: State(state), Message: message.String, Kind: kind.String}
	if at.Valid {
		t := at.Time.UTC()
		res.AnalysisStatus.At = &t
	}
	res.Stage = Stage(stage)
	res.GeneratedDocumentPath = docPath.String
	if len(formatted) > 0 {
		var f model.Formatted
		if err := json.Unmarshal(formatted, &f); err != nil {
			return Resume{}, fmt.Errorf("decode formatted for %s: %w", res.ID, err)
		}
		f = f.Normalize()
		res.Formatted = &f
	}
	return res, nil
}

// mapPGError turns constraint and id-format failures into package sentinels.
func mapPGError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23514":
		return fmt.Errorf("%w: %s", ErrInvariant, pgErr.ConstraintName)
	case "22P02":
		return ErrNotFound
	}
	return err
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func ptrValue(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

var _ Repo = (*PGRepo)(nil)
