package resumes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryRepoCreateDefaults(t *testing.T) {
	repo := NewMemoryRepo()
	rec, err := repo.Create(context.Background(), Resume{OwnerDocument: "1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID == "" {
		t.Fatalf("expected generated id")
	}
	if rec.Stage != StageRaw || rec.AnalysisStatus.State != StatePending {
		t.Fatalf("unexpected defaults %s/%s", rec.Stage, rec.AnalysisStatus.State)
	}
	if _, err := repo.Create(context.Background(), Resume{ID: rec.ID}); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected duplicate id to be rejected, got %v", err)
	}
}

func TestMemoryRepoExtractedTextIsWrittenOnce(t *testing.T) {
	repo := NewMemoryRepo()
	rec, _ := repo.Create(context.Background(), Resume{OwnerDocument: "1"})

	if _, err := repo.Update(context.Background(), rec.ID, Patch{ExtractedText: stringPtr("first"), ExtractionMethod: stringPtr("ocr")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	updated, err := repo.Update(context.Background(), rec.ID, Patch{ExtractedText: stringPtr("second"), ExtractionMethod: stringPtr("supplied")})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if updated.ExtractedText != "first" || updated.ExtractionMethod != "ocr" {
		t.Fatalf("expected first text to win, got %q/%q", updated.ExtractedText, updated.ExtractionMethod)
	}
}

func TestMemoryRepoRejectsInvariantViolations(t *testing.T) {
	repo := NewMemoryRepo()
	rec, _ := repo.Create(context.Background(), Resume{OwnerDocument: "1"})
	formatted := sampleFormatted()

	tests := []struct {
		name  string
		patch Patch
	}{
		{name: "formatted without done", patch: Patch{Formatted: &formatted}},
		{name: "done without formatted", patch: Patch{AnalysisStatus: &AnalysisStatus{State: StateDone}}},
		{name: "document without formatted", patch: Patch{GeneratedDocumentPath: stringPtr("documents/x.docx")}},
		{name: "document set and cleared", patch: Patch{GeneratedDocumentPath: stringPtr("documents/x.docx"), ClearGeneratedDocument: true}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := repo.Update(context.Background(), rec.ID, tt.patch); !errors.Is(err, ErrInvariant) {
				t.Fatalf("expected ErrInvariant, got %v", err)
			}
			stored, _ := repo.GetByID(context.Background(), rec.ID)
			if stored.Formatted != nil || stored.GeneratedDocumentPath != "" || stored.AnalysisStatus.State != StatePending {
				t.Fatalf("rejected update must not change the record: %+v", stored)
			}
		})
	}
}

func TestMemoryRepoFormattedClearsDocument(t *testing.T) {
	repo := NewMemoryRepo()
	rec, _ := repo.Create(context.Background(), Resume{OwnerDocument: "1"})
	formatted := sampleFormatted()
	done := &AnalysisStatus{State: StateDone}

	if _, err := repo.Update(context.Background(), rec.ID, Patch{Formatted: &formatted, AnalysisStatus: done}); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	withDoc, err := repo.Update(context.Background(), rec.ID, Patch{GeneratedDocumentPath: stringPtr("documents/a.docx"), Stage: stagePtr(StageRendered)})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if withDoc.GeneratedDocumentPath != "documents/a.docx" {
		t.Fatalf("expected document path")
	}

	formatted.FullName = "Otra Persona"
	again, err := repo.Update(context.Background(), rec.ID, Patch{Formatted: &formatted, AnalysisStatus: done, Stage: stagePtr(StageAnalyzed)})
	if err != nil {
		t.Fatalf("reanalyze: %v", err)
	}
	if again.GeneratedDocumentPath != "" {
		t.Fatalf("expected stale document to be cleared")
	}
	if again.Formatted.FullName != "Otra Persona" {
		t.Fatalf("expected new formatted data")
	}
}

func TestMemoryRepoReturnsCopies(t *testing.T) {
	repo := NewMemoryRepo()
	rec, _ := repo.Create(context.Background(), Resume{OwnerDocument: "1"})
	formatted := sampleFormatted()
	if _, err := repo.Update(context.Background(), rec.ID, Patch{Formatted: &formatted, AnalysisStatus: &AnalysisStatus{State: StateDone}}); err != nil {
		t.Fatalf("update: %v", err)
	}

	first, _ := repo.GetByID(context.Background(), rec.ID)
	first.Formatted.FullName = "mutated"
	first.Formatted.Expertise[0] = "mutated"

	second, _ := repo.GetByID(context.Background(), rec.ID)
	if second.Formatted.FullName == "mutated" || second.Formatted.Expertise[0] == "mutated" {
		t.Fatalf("stored record was mutated through a returned copy")
	}
}

func TestMemoryRepoListNewestFirst(t *testing.T) {
	repo := NewMemoryRepo()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if _, err := repo.Create(context.Background(), Resume{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	tests := []struct {
		name          string
		limit, offset int
		want          []string
	}{
		{name: "no limit uses default", want: []string{"c", "b", "a"}},
		{name: "negative limit uses default", limit: -1, want: []string{"c", "b", "a"}},
		{name: "limited", limit: 2, want: []string{"c", "b"}},
		{name: "offset", limit: 2, offset: 2, want: []string{"a"}},
		{name: "past end", offset: 5, want: nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			list, err := repo.List(context.Background(), tt.limit, tt.offset)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != len(tt.want) {
				t.Fatalf("expected %d items, got %d", len(tt.want), len(list))
			}
			for i, id := range tt.want {
				if list[i].ID != id {
					t.Fatalf("position %d: expected %s, got %s", i, id, list[i].ID)
				}
			}
		})
	}
}

func TestMemoryRepoListCapsAtDefaultLimit(t *testing.T) {
	repo := NewMemoryRepo()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < DefaultListLimit+5; i++ {
		if _, err := repo.Create(context.Background(), Resume{CreatedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	list, err := repo.List(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != DefaultListLimit {
		t.Fatalf("expected %d items, got %d", DefaultListLimit, len(list))
	}
}

func TestMemoryRepoConcurrentUpdates(t *testing.T) {
	repo := NewMemoryRepo()
	rec, _ := repo.Create(context.Background(), Resume{OwnerDocument: "1"})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.Update(context.Background(), rec.ID, Patch{Stage: stagePtr(StageTextExtracted)})
			_, _ = repo.GetByID(context.Background(), rec.ID)
		}()
	}
	wg.Wait()

	stored, _ := repo.GetByID(context.Background(), rec.ID)
	if stored.Stage != StageTextExtracted {
		t.Fatalf("unexpected stage %s", stored.Stage)
	}
}
