// Package middleware holds the HTTP middleware shared by every API route.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

// OwnerHeader carries the caller's owner id. It is trusted as sent.
const OwnerHeader = "X-Owner-ID"

type ownerContextKey struct{}

var ownerIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_.@:-]{1,128}$`)

// Owner copies the X-Owner-ID header into the request context. A missing
// header leaves the owner empty; handlers that need one reject the request.
// A malformed header is rejected here with 400.
func Owner(logger logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner := strings.TrimSpace(r.Header.Get(OwnerHeader))
			if owner != "" && !ownerIDPattern.MatchString(owner) {
				logger.Warn("rejected malformed owner id", logging.String("path", r.URL.Path))
				writeError(w, errors.NewValidationError("invalid owner id", []errors.FieldViolation{
					{Field: OwnerHeader, Message: "must be 1-128 characters of [a-zA-Z0-9_.@:-]"},
				}))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}

// WithOwner stores owner in ctx.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerContextKey{}, owner)
}

// OwnerFromContext returns the owner stored by Owner, or "".
func OwnerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerContextKey{}).(string)
	return owner
}

type errorBody struct {
	Code    string                  `json:"code"`
	Message string                  `json:"message"`
	Fields  []errors.FieldViolation `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	body := errorBody{Code: string(code), Message: errors.DefaultMessageForCode(code), Fields: errors.Violations(err)}
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		body.Message = appErr.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errors.HTTPStatusForCode(code))
	_ = json.NewEncoder(w).Encode(body)
}
