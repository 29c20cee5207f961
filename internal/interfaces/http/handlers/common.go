// Package handlers implements the HTTP API for analyses, alerts and
// notifications.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/internal/interfaces/http/middleware"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string                  `json:"code"`
	Message string                  `json:"message"`
	Detail  string                  `json:"detail,omitempty"`
	Fields  []errors.FieldViolation `json:"fields,omitempty"`
}

func ownerFrom(r *http.Request) string {
	return middleware.OwnerFromContext(r.Context())
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeAppError maps err onto its code's HTTP status. Server-side failures
// other than collaborator outages are logged and masked.
func writeAppError(w http.ResponseWriter, logger logging.Logger, err error) {
	code := errors.GetCode(err)
	if code == errors.CodeUnknown {
		code = errors.ErrCodeInternal
	}
	status := errors.HTTPStatusForCode(code)

	resp := ErrorResponse{Code: string(code), Message: errors.DefaultMessageForCode(code)}
	var appErr *errors.AppError
	if errors.As(err, &appErr) && (status < 500 || errors.IsUnavailable(err)) {
		resp.Message = appErr.Message
		resp.Detail = appErr.Detail
		resp.Fields = errors.Violations(err)
	}
	if status >= 500 && logger != nil {
		logger.Error("request failed", logging.String("code", string(code)), logging.Err(err))
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a JSON body into dst. Unknown fields are rejected so typos
// in optional settings do not pass silently.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return errors.New(errors.ErrCodeBadRequest, "request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New(errors.ErrCodeBadRequest, "request body too large")
		}
		return errors.Wrap(err, errors.ErrCodeBadRequest, "malformed JSON body")
	}
	return nil
}

// queryInt returns the named query parameter, or def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewValidationError("invalid query parameter", []errors.FieldViolation{
			{Field: name, Message: "must be an integer"},
		})
	}
	return n, nil
}

func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.NewValidationError("invalid query parameter", []errors.FieldViolation{
			{Field: name, Message: "must be a boolean"},
		})
	}
	return b, nil
}

func requireOwner(r *http.Request) (string, error) {
	owner := ownerFrom(r)
	if owner == "" {
		return "", errors.NewValidationError("owner required", []errors.FieldViolation{
			{Field: middleware.OwnerHeader, Message: "is required"},
		})
	}
	return owner, nil
}
