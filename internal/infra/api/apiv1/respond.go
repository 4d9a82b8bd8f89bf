package apiv1

import (
	"encoding/json"
	"errors"
	"net/http"

	"ebook-queue/internal/domain"
	"ebook-queue/internal/infra/logging"

	"github.com/go-playground/validator/v10"
)

type errorBody struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	TraceID string `json:"traceId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg, TraceID: logging.TraceID(r.Context())})
}

// statusOf maps domain errors onto HTTP status codes.
func statusOf(err error) int {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve), errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrLockNotAcquired):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStore),
		errors.Is(err, domain.ErrArchiveDisabled),
		errors.Is(err, domain.ErrGeneratorUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON error. 5xx details stay in the log.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	body := errorBody{Error: err.Error(), TraceID: logging.TraceID(r.Context())}

	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	l := logging.With(r.Context(), s.log)
	if status >= 500 {
		l.Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
		body.Error = http.StatusText(status)
		switch {
		case errors.Is(err, domain.ErrArchiveDisabled):
			body.Error = domain.ErrArchiveDisabled.Error()
		case errors.Is(err, domain.ErrGeneratorUnavailable):
			body.Error = domain.ErrGeneratorUnavailable.Error()
		}
	} else {
		l.Debug().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, status, body)
}

// validationFailure turns the first validator field error into a domain.ValidationError.
func validationFailure(err error) error {
	var fes validator.ValidationErrors
	if errors.As(err, &fes) && len(fes) > 0 {
		fe := fes[0]
		return &domain.ValidationError{Field: fe.Field(), Reason: "failed " + fe.Tag()}
	}
	return &domain.ValidationError{Reason: err.Error()}
}
