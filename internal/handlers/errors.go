package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"nutrition-rag/internal/apperr"
	"nutrition-rag/internal/contextutil"
)

// ErrorResponse represents an error response.
//
// swagger:model ErrorResponse
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}

// writeJSON writes v with status 200.
func writeJSON(ctx context.Context, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// handleServiceError maps error kinds to HTTP status codes.
func handleServiceError(ctx context.Context, w http.ResponseWriter, err error, defaultMsg string) {
	logger := contextutil.LoggerFromContext(ctx)

	var ve *apperr.ValidationError
	switch {
	case errors.As(err, &ve):
		logger.WarnContext(ctx, "invalid request", "field", ve.Field, "error", ve.Message)
		if ve.Field == "question" {
			writeError(w, http.StatusBadRequest, ve.Message)
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s %s", ve.Field, ve.Message))
	case errors.Is(err, apperr.ErrValidation):
		logger.WarnContext(ctx, "invalid request", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request")
	case errors.Is(err, apperr.ErrTransientUpstream):
		logger.ErrorContext(ctx, "upstream unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "Upstream service unavailable")
	case errors.Is(err, apperr.ErrUpstream), errors.Is(err, apperr.ErrDataContract):
		logger.ErrorContext(ctx, "upstream error", "error", err)
		writeError(w, http.StatusBadGateway, "External service error")
	default:
		logger.ErrorContext(ctx, "request failed", "error", err)
		writeError(w, http.StatusInternalServerError, defaultMsg)
	}
}
