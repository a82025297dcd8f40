package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "credlock/pkg/domain-errors"
)

// DecodeJSON decodes a JSON request body into the target type.
// On failure it writes an error response and returns nil, false.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, requestID string) (*T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(r.Context(), "failed to decode request body",
			"error", err,
			"request_id", requestID,
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return nil, false
	}
	return &req, true
}

// Validatable is implemented by request types that support validation.
type Validatable interface {
	Validate() error
}

// Normalizable is implemented by request types that support normalization.
type Normalizable interface {
	Normalize()
}

// DecodeAndPrepare combines JSON decoding with request preparation: it calls
// Normalize() and Validate() when the target type implements them.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, requestID string) (*T, bool) {
	req, ok := DecodeJSON[T](w, r, logger, requestID)
	if !ok {
		return nil, false
	}

	if n, ok := any(req).(Normalizable); ok {
		n.Normalize()
	}
	if v, ok := any(req).(Validatable); ok {
		if err := v.Validate(); err != nil {
			logger.WarnContext(r.Context(), "invalid request",
				"error", err,
				"request_id", requestID,
			)
			var domainErr *dErrors.Error
			if errors.As(err, &domainErr) {
				WriteError(w, err)
			} else {
				WriteError(w, dErrors.New(dErrors.CodeValidation, err.Error()))
			}
			return nil, false
		}
	}

	return req, true
}
