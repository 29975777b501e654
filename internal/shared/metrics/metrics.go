package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	extractionTotal       = newCounterVec("method")
	extractionFailedTotal atomic.Uint64

	structuringStartedTotal   atomic.Uint64
	structuringCompletedTotal atomic.Uint64
	structuringFailedTotal    = newCounterVec("kind")

	renderTotal       atomic.Uint64
	renderFailedTotal atomic.Uint64

	jobsReceivedTotal             atomic.Uint64
	jobsCompletedTotal            atomic.Uint64
	jobsFailedTotal               atomic.Uint64
	jobsDeletedUnrecoverableTotal atomic.Uint64

	structuringDuration = newHistogram([]float64{250, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000})
)

// IncExtraction counts a successful extraction by method (ocr, supplied, pdf-text).
func IncExtraction(method string) {
	extractionTotal.Inc(method)
}

// IncExtractionFailed counts an extraction failure.
func IncExtractionFailed() {
	extractionFailedTotal.Add(1)
}

// IncStructuringStarted increments the started counter.
func IncStructuringStarted() {
	structuringStartedTotal.Add(1)
}

// IncStructuringCompleted increments the completed counter.
func IncStructuringCompleted() {
	structuringCompletedTotal.Add(1)
}

// IncStructuringFailed counts a structuring failure by error kind.
func IncStructuringFailed(kind string) {
	structuringFailedTotal.Inc(kind)
}

// IncRender increments the rendered documents counter.
func IncRender() {
	renderTotal.Add(1)
}

// IncRenderFailed increments the render failure counter.
func IncRenderFailed() {
	renderFailedTotal.Add(1)
}

// IncAnalyzeJobsReceived counts queue messages picked up by the worker.
func IncAnalyzeJobsReceived() {
	jobsReceivedTotal.Add(1)
}

// IncAnalyzeJobsCompleted counts queued analyze jobs that succeeded.
func IncAnalyzeJobsCompleted() {
	jobsCompletedTotal.Add(1)
}

// IncAnalyzeJobsFailed counts queued analyze jobs whose run failed.
func IncAnalyzeJobsFailed() {
	jobsFailedTotal.Add(1)
}

// IncAnalyzeJobsDeletedUnrecoverable counts messages dropped because they could not be parsed.
func IncAnalyzeJobsDeletedUnrecoverable() {
	jobsDeletedUnrecoverableTotal.Add(1)
}

// ObserveStructuringDurationMs records a structuring call duration in milliseconds.
func ObserveStructuringDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	structuringDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounterVec(&buf, "extraction_total", "Successful text extractions", extractionTotal)
	writeCounter(&buf, "extraction_failed_total", "Failed text extractions", extractionFailedTotal.Load())
	writeCounter(&buf, "structuring_started_total", "Structuring calls started", structuringStartedTotal.Load())
	writeCounter(&buf, "structuring_completed_total", "Structuring calls completed", structuringCompletedTotal.Load())
	writeCounterVec(&buf, "structuring_failed_total", "Structuring calls failed", structuringFailedTotal)
	writeCounter(&buf, "render_total", "Documents rendered", renderTotal.Load())
	writeCounter(&buf, "render_failed_total", "Document renders failed", renderFailedTotal.Load())
	writeCounter(&buf, "analyze_jobs_received_total", "Analyze jobs received from the queue", jobsReceivedTotal.Load())
	writeCounter(&buf, "analyze_jobs_completed_total", "Analyze jobs completed", jobsCompletedTotal.Load())
	writeCounter(&buf, "analyze_jobs_failed_total", "Analyze jobs failed", jobsFailedTotal.Load())
	writeCounter(&buf, "analyze_jobs_deleted_unrecoverable_total", "Unparseable analyze jobs dropped", jobsDeletedUnrecoverableTotal.Load())
	writeHistogram(&buf, "structuring_duration_ms", "Structuring duration in milliseconds", structuringDuration.Snapshot())
	return buf.String()
}

type counterVec struct {
	label  string
	mu     sync.Mutex
	values map[string]uint64
}

func newCounterVec(label string) *counterVec {
	return &counterVec{label: label, values: map[string]uint64{}}
}

func (v *counterVec) Inc(value string) {
	if value == "" {
		value = "unknown"
	}
	v.mu.Lock()
	v.values[value]++
	v.mu.Unlock()
}

func (v *counterVec) snapshot() ([]string, map[string]uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]uint64, len(v.values))
	keys := make([]string, 0, len(v.values))
	for k, n := range v.values {
		out[k] = n
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, out
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeCounterVec(buf *bytes.Buffer, name, help string, vec *counterVec) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	keys, values := vec.snapshot()
	for _, k := range keys {
		fmt.Fprintf(buf, "%s{%s=%q} %d\n", name, vec.label, k, values[k])
	}
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// SinceMillis returns the milliseconds elapsed since start.
func SinceMillis(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
