package resumes

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"cvscanner-backend/internal/extract"
	"cvscanner-backend/internal/llm"
	"cvscanner-backend/internal/queue"
	"cvscanner-backend/internal/shared/apperr"
	local "cvscanner-backend/internal/shared/storage/object/local"
	"cvscanner-backend/resume/model"
	"cvscanner-backend/resume/render"
)

// spyEngine records whether OCR ran.
type spyEngine struct {
	mu    sync.Mutex
	calls int
	text  string
	err   error
}

func (s *spyEngine) Recognize(ctx context.Context, image []byte, language string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.text, s.err
}

func (s *spyEngine) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stubStructurer returns a fixed result and counts calls.
type stubStructurer struct {
	mu     sync.Mutex
	calls  int
	texts  []string
	output llm.Output
	err    error
}

func (s *stubStructurer) Structure(ctx context.Context, text string) (llm.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.texts = append(s.texts, text)
	return s.output, s.err
}

func (s *stubStructurer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type queueStub struct {
	mu       sync.Mutex
	messages []queue.Message
}

func (q *queueStub) Send(ctx context.Context, msg queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, msg)
	return nil
}

type artifactSpy struct {
	mu   sync.Mutex
	keys []string
}

func (a *artifactSpy) SaveBestEffort(ctx context.Context, resumeID string, raw []byte) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := "artifacts/structured/" + resumeID + ".json"
	a.keys = append(a.keys, key)
	return key
}

type fixture struct {
	svc        *Service
	repo       *MemoryRepo
	engine     *spyEngine
	structurer *stubStructurer
	queue      *queueStub
	artifacts  *artifactSpy
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := NewMemoryRepo()
	engine := &spyEngine{text: "texto reconocido"}
	structurer := &stubStructurer{output: llm.Output{
		Formatted: sampleFormatted(),
		Raw:       []byte(`{"fullName":"Ana María Gómez"}`),
		Model:     "gpt-4o-mini",
	}}
	q := &queueStub{}
	artifacts := &artifactSpy{}
	fixed := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc := &Service{
		Repo:          repo,
		Store:         local.New(t.TempDir()),
		Extractor:     extract.New(engine, "spa"),
		Structurer:    structurer,
		Renderer:      render.New(""),
		Artifacts:     artifacts,
		Queue:         q,
		MinTextLength: DefaultMinTextLength,
		Now:           func() time.Time { return fixed },
	}
	return &fixture{svc: svc, repo: repo, engine: engine, structurer: structurer, queue: q, artifacts: artifacts}
}

func sampleFormatted() model.Formatted {
	return model.Formatted{
		FullName:   "Ana María Gómez",
		Profession: "Ingeniera de software",
		Summary:    "Desarrolladora backend con experiencia en pagos.",
		Contact:    model.Contact{Email: "ana@example.com"},
		Expertise:  []string{"Go", "PostgreSQL"},
		Experience: []model.Experience{
			{JobTitle: "Senior Developer", Company: "Acme", StartDate: "2019", EndDate: "2024", Responsibilities: []string{"Diseñó el ledger."}},
		},
		Languages: []string{"Español"},
	}.Normalize()
}

// resumeText returns text of exactly n runes.
func resumeText(n int) string {
	base := "Ana María Gómez. Ingeniera de software con experiencia en Go y PostgreSQL. "
	var b strings.Builder
	for b.Len() < n*4 {
		b.WriteString(base)
	}
	return string([]rune(b.String())[:n])
}

// pngBytes is a valid 1x1 PNG.
var pngBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01, 0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
	0x89, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0xf8, 0xcf, 0xc0, 0xf0,
	0x1f, 0x00, 0x05, 0x00, 0x01, 0xff, 0x89, 0x99, 0x3d, 0x1d, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45,
	0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func requireKind(t *testing.T, err error, kind apperr.Kind) *apperr.Error {
	t.Helper()
	appErr, ok := apperr.As(err)
	if !ok || appErr.Kind != kind {
		t.Fatalf("expected %s, got %v", kind, err)
	}
	return appErr
}
