package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"cvscanner-backend/internal/bootstrap"
	"cvscanner-backend/internal/queue"
)

type fakeSQS struct {
	deleted []string
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	_ = ctx
	_ = params
	_ = optFns
	return &sqs.ReceiveMessageOutput{}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	_ = ctx
	_ = optFns
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type fakeAnalyzer struct {
	calls []string
	err   error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, id string) error {
	_ = ctx
	f.calls = append(f.calls, id)
	return f.err
}

func sqsMessage(t *testing.T, receipt, body string) sqstypes.Message {
	t.Helper()
	return sqstypes.Message{
		MessageId:     aws.String("m-" + receipt),
		ReceiptHandle: aws.String(receipt),
		Body:          aws.String(body),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	}
}

func encoded(t *testing.T, resumeID string) string {
	t.Helper()
	body, err := queue.EncodeMessage(queue.Message{ResumeID: resumeID, RequestID: "req-1", Version: queue.MessageVersion})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return string(body)
}

func TestWorkerDeletesMessageAfterOneAttempt(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		err       error
		wantCalls int
	}{
		{name: "success", body: encoded(t, "resume-1"), wantCalls: 1},
		{name: "analyze failure", body: encoded(t, "resume-2"), err: errors.New("rate limited"), wantCalls: 1},
		{name: "invalid json", body: "{bad-json"},
		{name: "empty body", body: ""},
		{name: "missing id", body: `{"requestId":"req-3"}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeSQS{}
			analyzer := &fakeAnalyzer{err: tt.err}
			app := &bootstrap.App{Analyzer: analyzer}

			handleMessage(context.Background(), app, client, "queue", sqsMessage(t, "r1", tt.body))

			if len(client.deleted) != 1 || client.deleted[0] != "r1" {
				t.Fatalf("expected exactly one delete, got %v", client.deleted)
			}
			if len(analyzer.calls) != tt.wantCalls {
				t.Fatalf("expected %d analyze calls, got %d", tt.wantCalls, len(analyzer.calls))
			}
		})
	}
}

func TestWorkerSkipsDeleteWithoutReceipt(t *testing.T) {
	client := &fakeSQS{}
	app := &bootstrap.App{Analyzer: &fakeAnalyzer{}}

	handleMessage(context.Background(), app, client, "queue", sqsMessage(t, "", encoded(t, "resume-1")))

	if len(client.deleted) != 0 {
		t.Fatalf("expected no delete without a receipt handle, got %v", client.deleted)
	}
}

func TestReceiveCount(t *testing.T) {
	tests := []struct {
		attrs map[string]string
		want  int
	}{
		{attrs: nil, want: 0},
		{attrs: map[string]string{"ApproximateReceiveCount": "3"}, want: 3},
		{attrs: map[string]string{"ApproximateReceiveCount": "x"}, want: 0},
	}
	for _, tt := range tests {
		if got := receiveCount(sqstypes.Message{Attributes: tt.attrs}); got != tt.want {
			t.Fatalf("receiveCount(%v) = %d, want %d", tt.attrs, got, tt.want)
		}
	}
}
