package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cvscanner-backend/internal/shared/apperr"
	"cvscanner-backend/internal/shared/telemetry"
)

type failureMapping struct {
	status  int
	code    string
	message string
	// opaque hides the error text from the caller; it is logged instead.
	opaque bool
}

var failureMappings = map[apperr.Kind]failureMapping{
	apperr.KindExtractionFailed:       {http.StatusUnprocessableEntity, "extraction_failed", "Could not extract text from the image", false},
	apperr.KindInsufficientText:       {http.StatusBadRequest, "insufficient_text", "Extracted text is too short to analyze", false},
	apperr.KindStructuringRateLimited: {http.StatusTooManyRequests, "structuring_rate_limited", "The AI provider is rate limiting requests, retry later", false},
	apperr.KindStructuringAuthError:   {http.StatusBadGateway, "structuring_auth_error", "The AI provider rejected the configured credentials", false},
	apperr.KindStructuringBadRequest:  {http.StatusBadRequest, "structuring_bad_request", "The AI provider rejected the request", false},
	apperr.KindStructuringParseError:  {http.StatusBadGateway, "structuring_parse_error", "The AI provider returned an unusable response", false},
	apperr.KindStructuringFailed:      {http.StatusBadGateway, "structuring_failed", "The AI provider call failed", false},
	apperr.KindRenderFailed:           {http.StatusInternalServerError, "internal_error", "Failed to generate the document", true},
	apperr.KindRecordNotFound:         {http.StatusNotFound, "not_found", "Resource not found", false},
	apperr.KindPersistenceFailed:      {http.StatusInternalServerError, "internal_error", "Internal server error", true},
}

var unknownFailure = failureMapping{http.StatusInternalServerError, "internal_error", "Internal server error", true}

// FailureBody is the error envelope with the taxonomy kind attached.
type FailureBody struct {
	Code    string      `json:"code"`
	Kind    string      `json:"kind"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// FailureResponse wraps the failure body.
type FailureResponse struct {
	Error FailureBody `json:"error"`
}

// StatusFor returns the HTTP status a failure of kind maps to.
func StatusFor(kind apperr.Kind) int {
	if m, ok := failureMappings[kind]; ok {
		return m.status
	}
	return unknownFailure.status
}

// Description is the client-facing view of a pipeline error. Opaque kinds
// carry only their generic message.
type Description struct {
	Status  int
	Code    string
	Kind    apperr.Kind
	Message string
	Details interface{}
}

// Describe maps err onto the failure taxonomy.
func Describe(err error) Description {
	appErr, ok := apperr.As(err)
	mapping := unknownFailure
	kind := apperr.KindPersistenceFailed
	if ok {
		kind = appErr.Kind
		if m, found := failureMappings[kind]; found {
			mapping = m
		}
	}

	d := Description{
		Status:  mapping.status,
		Code:    mapping.code,
		Kind:    kind,
		Message: mapping.message,
	}
	if ok && !mapping.opaque && appErr.Message != "" && kind != apperr.KindExtractionFailed {
		d.Message = appErr.Message
	}
	if ok {
		d.Details = failureDetails(appErr)
	}
	return d
}

// LogFailure writes the full error with its taxonomy fields.
func LogFailure(event string, err error, d Description, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["status"] = d.Status
	fields["code"] = d.Code
	fields["kind"] = string(d.Kind)
	fields["error"] = err
	if appErr, ok := apperr.As(err); ok {
		if appErr.Field != "" {
			fields["field"] = appErr.Field
		}
		if appErr.ResourceID != "" {
			fields["resume_id"] = appErr.ResourceID
		}
	}
	if d.Status >= http.StatusInternalServerError {
		telemetry.Error(event, fields)
	} else {
		telemetry.Warn(event, fields)
	}
}

// Failure translates a pipeline error into its HTTP response.
func Failure(c *gin.Context, err error) {
	d := Describe(err)
	LogFailure("http.failure", err, d, map[string]any{
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	})
	c.Set("errorKind", string(d.Kind))

	c.AbortWithStatusJSON(d.Status, FailureResponse{
		Error: FailureBody{
			Code:    d.Code,
			Kind:    string(d.Kind),
			Message: d.Message,
			Details: d.Details,
		},
	})
}

func failureDetails(e *apperr.Error) interface{} {
	switch e.Kind {
	case apperr.KindExtractionFailed:
		d := gin.H{"stage": e.Stage}
		if e.ResourceID != "" {
			d["resumeId"] = e.ResourceID
		}
		return d
	case apperr.KindInsufficientText:
		d := gin.H{"minimum": e.Minimum, "length": e.Length}
		if e.ResourceID != "" {
			d["resumeId"] = e.ResourceID
		}
		return d
	case apperr.KindStructuringBadRequest:
		if e.Detail != "" {
			return gin.H{"upstream": e.Detail}
		}
	case apperr.KindRecordNotFound:
		if e.ResourceID != "" {
			return gin.H{"resumeId": e.ResourceID}
		}
	}
	return nil
}
