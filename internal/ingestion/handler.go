package ingestion

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	v1 "github.com/aevon-lab/project-tally/internal/api/v1"
	httperr "github.com/aevon-lab/project-tally/internal/core/errors"
	"github.com/aevon-lab/project-tally/internal/core/storage"
	"github.com/aevon-lab/project-tally/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgReadBodyFailed  = "Failed to read request body"
	msgInvalidJSON     = "Invalid JSON body"
	msgApplyFailed     = "Failed to apply change batch"
	msgConstraintError = "Change batch violates an aggregate constraint"
)

// ingestionError carries the structured HTTP error shape from a helper back to the orchestrator.
type ingestionError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *ingestionError) Error() string {
	return e.message
}

// ChangeHandler handles HTTP POST requests carrying one change batch.
func (s *Service) ChangeHandler(c *gin.Context) {
	start := time.Now()

	batch, payloadSize, ierr := s.parseBatch(c)
	if ierr != nil {
		writeError(c, ierr)
		return
	}

	slog.Info("[Ingestion] Received change batch",
		"batch_id", batch.ID,
		"table", batch.Table,
		"op", batch.Op,
		"rows", batch.Rows(),
		"payload_size", payloadSize)

	if ierr := s.applyBatch(c, batch); ierr != nil {
		status := metrics.StatusRejected
		if ierr.statusCode >= http.StatusInternalServerError {
			status = metrics.StatusFailed
		}
		s.metrics.ObserveBatch(batch.Table, string(batch.Op), status, batch.Rows(), time.Since(start))
		writeError(c, ierr)
		return
	}

	s.metrics.ObserveBatch(batch.Table, string(batch.Op), metrics.StatusApplied, batch.Rows(), time.Since(start))
	c.JSON(http.StatusAccepted, v1.ChangeResponse{Status: "applied", BatchID: batch.ID})
}

// parseBatch reads the raw request body and binds it into a ChangeBatch.
// Returns the parsed batch and the raw payload size.
func (s *Service) parseBatch(c *gin.Context) (v1.ChangeBatch, int, *ingestionError) {
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("[Ingestion] Failed to read request body", "error", err)
		return v1.ChangeBatch{}, 0, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("[Ingestion] Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return v1.ChangeBatch{}, len(bodyBytes), &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpPayloadTooLargeError,
			message:    "Request body exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	var batch v1.ChangeBatch
	if err := c.ShouldBindJSON(&batch); err != nil {
		slog.Warn("[Ingestion] Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return v1.ChangeBatch{}, len(bodyBytes), &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}

	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	return batch, len(bodyBytes), nil
}

// applyBatch runs the batch and maps store and dispatcher errors to HTTP errors.
func (s *Service) applyBatch(c *gin.Context, batch v1.ChangeBatch) *ingestionError {
	err := s.ApplyBatch(c.Request.Context(), batch)
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, storage.ErrUnknownTable):
		slog.Warn("[Ingestion] Change batch for unknown table", "batch_id", batch.ID, "table", batch.Table)
		return &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpUnknownTableError,
			message:    err.Error(),
			details:    map[string]interface{}{"tables": v1.Tables},
		}
	case errors.Is(err, storage.ErrInvalidBatch):
		slog.Warn("[Ingestion] Invalid change batch", "batch_id", batch.ID, "error", err)
		return &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidBatchError,
			message:    err.Error(),
		}
	case errors.Is(err, storage.ErrConstraintViolation):
		slog.Warn("[Ingestion] Change batch rejected by constraint", "batch_id", batch.ID, "error", err)
		return &ingestionError{
			statusCode: http.StatusConflict,
			errorType:  httperr.HttpConstraintViolationError,
			message:    msgConstraintError,
		}
	}

	slog.Error("[Ingestion] Failed to apply change batch", "batch_id", batch.ID, "error", err)
	return &ingestionError{
		statusCode: http.StatusInternalServerError,
		errorType:  httperr.HttpInternalError,
		message:    msgApplyFailed,
	}
}

// writeError serializes an ingestionError as the JSON HTTP response.
func writeError(c *gin.Context, err *ingestionError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
