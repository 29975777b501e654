package resumes

import (
	"time"

	"cvscanner-backend/resume/model"
)

// Stage is the pipeline position of a record.
type Stage string

const (
	StageRaw           Stage = "RAW"
	StageTextExtracted Stage = "TEXT_EXTRACTED"
	StageAnalyzed      Stage = "ANALYZED"
	StageRendered      Stage = "RENDERED"
	StageFailed        Stage = "FAILED"
)

// State is the structuring outcome recorded on a record.
type State string

const (
	StatePending State = "PENDING"
	StateDone    State = "DONE"
	StateFailed  State = "FAILED"
)

// AnalysisStatus is the latest structuring outcome.
type AnalysisStatus struct {
	State   State      `json:"state"`
	Message string     `json:"message,omitempty"`
	Kind    string     `json:"kind,omitempty"`
	At      *time.Time `json:"at,omitempty"`
}

// Resume is one submitted résumé and everything derived from it.
type Resume struct {
	ID                    string           `json:"id"`
	OwnerDocument         string           `json:"ownerDocument"`
	ImageKey              string           `json:"imageKey,omitempty"`
	ImageMimeType         string           `json:"imageMimeType,omitempty"`
	FileName              string           `json:"fileName,omitempty"`
	ExtractedText         string           `json:"extractedText,omitempty"`
	ExtractionMethod      string           `json:"extractionMethod,omitempty"`
	Formatted             *model.Formatted `json:"formatted,omitempty"`
	AnalysisStatus        AnalysisStatus   `json:"analysisStatus"`
	Stage                 Stage            `json:"stage"`
	GeneratedDocumentPath string           `json:"generatedDocumentPath,omitempty"`
	CreatedAt             time.Time        `json:"createdAt"`
	UpdatedAt             time.Time        `json:"updatedAt"`
}

// Patch is a partial update. Nil fields are left untouched.
//
// Formatted and AnalysisStatus{State: DONE} travel together. Setting
// Formatted also drops any generated document, which referenced the
// previous data. ExtractedText is only written while the record has none.
type Patch struct {
	ExtractedText          *string
	ExtractionMethod       *string
	Stage                  *Stage
	AnalysisStatus         *AnalysisStatus
	Formatted              *model.Formatted
	GeneratedDocumentPath  *string
	ClearGeneratedDocument bool
}

// Validate checks the invariants a patch can violate on its own.
func (p Patch) Validate() error {
	done := p.AnalysisStatus != nil && p.AnalysisStatus.State == StateDone
	if p.Formatted != nil && !done {
		return invariantError("formatted requires analysis status DONE in the same update")
	}
	if done && p.Formatted == nil {
		return invariantError("analysis status DONE requires formatted in the same update")
	}
	if p.GeneratedDocumentPath != nil && (p.ClearGeneratedDocument || p.Formatted != nil) {
		return invariantError("generated document cannot be set and cleared in one update")
	}
	return nil
}

// apply merges p into r, enforcing record-level invariants.
func (p Patch) apply(r Resume, now time.Time) (Resume, error) {
	if p.ExtractedText != nil && r.ExtractedText == "" {
		r.ExtractedText = *p.ExtractedText
	}
	if p.ExtractionMethod != nil && r.ExtractionMethod == "" {
		r.ExtractionMethod = *p.ExtractionMethod
	}
	if p.Stage != nil {
		r.Stage = *p.Stage
	}
	if p.AnalysisStatus != nil {
		r.AnalysisStatus = *p.AnalysisStatus
	}
	if p.Formatted != nil {
		formatted := p.Formatted.Normalize()
		r.Formatted = &formatted
	}
	if p.ClearGeneratedDocument || p.Formatted != nil {
		r.GeneratedDocumentPath = ""
	}
	if p.GeneratedDocumentPath != nil {
		r.GeneratedDocumentPath = *p.GeneratedDocumentPath
	}

	if (r.Formatted != nil) != (r.AnalysisStatus.State == StateDone) {
		return Resume{}, invariantError("formatted must be set exactly when analysis status is DONE")
	}
	if r.GeneratedDocumentPath != "" && r.Formatted == nil {
		return Resume{}, invariantError("generated document requires formatted data")
	}
	r.UpdatedAt = now
	return r, nil
}

func clone(r Resume) Resume {
	if r.Formatted != nil {
		formatted := r.Formatted.Normalize()
		r.Formatted = &formatted
	}
	if r.AnalysisStatus.At != nil {
		at := *r.AnalysisStatus.At
		r.AnalysisStatus.At = &at
	}
	return r
}

func stringPtr(s string) *string { return &s }

func stagePtr(s Stage) *Stage { return &s }
