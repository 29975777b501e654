package workerproc

import (
	"context"
	"errors"
	"testing"

	"cvscanner-backend/internal/bootstrap"
	"cvscanner-backend/internal/queue"
	"cvscanner-backend/internal/resumes"
)

type recordingAnalyzer struct {
	ids        []string
	requestIDs []string
	err        error
}

func (r *recordingAnalyzer) Analyze(ctx context.Context, id string) error {
	r.ids = append(r.ids, id)
	r.requestIDs = append(r.requestIDs, resumes.RequestIDFromContext(ctx))
	return r.err
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr func(error) bool
	}{
		{name: "valid", body: `{"resumeId":"r-1","requestId":"req","version":1}`},
		{name: "empty", body: "  ", wantErr: func(err error) bool { var e ErrEmptyBody; return errors.As(err, &e) }},
		{name: "not json", body: "{", wantErr: func(err error) bool { var e ErrDecode; return errors.As(err, &e) }},
		{name: "future version", body: `{"resumeId":"r-1","version":9}`, wantErr: func(err error) bool { var e ErrDecode; return errors.As(err, &e) }},
		{name: "missing id", body: `{"resumeId":"  ","requestId":"req"}`, wantErr: func(err error) bool {
			var e ErrMissingResumeID
			return errors.As(err, &e) && e.RequestID == "req"
		}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			msg, meta, err := ParseMessage(tt.body)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if msg.ResumeID != "r-1" || meta.BodyLen != len(tt.body) || len(meta.BodySHA) != 64 {
					t.Fatalf("unexpected parse result %+v %+v", msg, meta)
				}
				return
			}
			if !tt.wantErr(err) {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
}

func TestHandleMessageRunsAnalyzeWithRequestID(t *testing.T) {
	analyzer := &recordingAnalyzer{}
	app := &bootstrap.App{Analyzer: analyzer}

	if err := HandleMessage(context.Background(), app, `{"resumeId":"r-1","requestId":"req-9","version":1}`); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(analyzer.ids) != 1 || analyzer.ids[0] != "r-1" || analyzer.requestIDs[0] != "req-9" {
		t.Fatalf("unexpected calls %+v %+v", analyzer.ids, analyzer.requestIDs)
	}
}

func TestHandleMessageUsesParsedMessage(t *testing.T) {
	analyzer := &recordingAnalyzer{}
	app := &bootstrap.App{Analyzer: analyzer}
	ctx := WithParsedMessage(context.Background(), queue.Message{ResumeID: "from-ctx"})

	if err := HandleMessage(ctx, app, "ignored"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if analyzer.ids[0] != "from-ctx" {
		t.Fatalf("expected parsed message to be reused, got %v", analyzer.ids)
	}
}

func TestHandleMessageWrapsAnalyzeFailure(t *testing.T) {
	cause := errors.New("rate limited")
	app := &bootstrap.App{Analyzer: &recordingAnalyzer{err: cause}}

	err := HandleMessage(context.Background(), app, `{"resumeId":"r-1"}`)
	var procErr ErrProcess
	if !errors.As(err, &procErr) || procErr.ResumeID != "r-1" {
		t.Fatalf("expected ErrProcess, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to unwrap")
	}
}

func TestHandleMessageRequiresAnalyzer(t *testing.T) {
	if err := HandleMessage(context.Background(), &bootstrap.App{}, `{"resumeId":"r-1"}`); err == nil {
		t.Fatalf("expected configuration error")
	}
}
