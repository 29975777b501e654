package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"cvscanner-backend/internal/bootstrap"
	"cvscanner-backend/internal/queue"
	"cvscanner-backend/internal/resumes"
)

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure or an unsupported message version.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrMissingResumeID indicates a message without a résumé id.
type ErrMissingResumeID struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingResumeID) Error() string { return "missing resume id" }

// ErrProcess indicates the analyze run failed after successful parsing. The
// failure is already recorded on the résumé.
type ErrProcess struct {
	ResumeID  string
	RequestID string
	Err       error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "analyze resume"
	}
	return "analyze resume: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if msg.ResumeID == "" {
		return msg, meta, ErrMissingResumeID{Meta: meta, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

type parsedMessageKey struct{}

// WithParsedMessage stores a decoded message in the context for reuse.
func WithParsedMessage(ctx context.Context, msg queue.Message) context.Context {
	return context.WithValue(ctx, parsedMessageKey{}, msg)
}

func parsedMessageFromContext(ctx context.Context) (queue.Message, bool) {
	if ctx == nil {
		return queue.Message{}, false
	}
	msg, ok := ctx.Value(parsedMessageKey{}).(queue.Message)
	return msg, ok
}

// HandleMessage parses the payload and runs one analyze for its résumé.
func HandleMessage(ctx context.Context, app *bootstrap.App, body string) error {
	if app == nil || app.Analyzer == nil {
		return errors.New("analyze service not configured")
	}

	msg, ok := parsedMessageFromContext(ctx)
	if !ok {
		var err error
		msg, _, err = ParseMessage(body)
		if err != nil {
			return err
		}
	}
	if msg.ResumeID == "" {
		return ErrMissingResumeID{Meta: ComputeMeta(body), RequestID: msg.RequestID}
	}

	ctxWithRequest := resumes.WithRequestID(ctx, msg.RequestID)
	if err := app.Analyzer.Analyze(ctxWithRequest, msg.ResumeID); err != nil {
		return ErrProcess{ResumeID: msg.ResumeID, RequestID: msg.RequestID, Err: err}
	}
	return nil
}
