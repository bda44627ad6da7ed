package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	campusAuth "github.com/MrEthical07/campusAuth"
	"github.com/MrEthical07/campusAuth/ownership"
	"github.com/go-chi/chi/v5"
)

// maxBodyFieldBytes bounds how much of a request body BodyField buffers.
const maxBodyFieldBytes = 1 << 20

var errMissingTargetID = errors.New("missing target id")

// RequireOwnership runs Engine.Authorize for the record named by check.
// It must sit behind RequireAuth. A request without a target id is a
// Validation error.
func RequireOwnership(engine *campusAuth.Engine, permission string, check ownership.Check) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok || engine == nil {
				WriteError(w, campusAuth.ErrTokenInvalid)
				return
			}

			id, err := check.Source(r)
			if err != nil {
				writeStatus(w, http.StatusBadRequest, err.Error())
				return
			}

			if err := engine.Authorize(r.Context(), p, permission, check, id); err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// URLParam reads the id from a chi route parameter.
func URLParam(name string) ownership.Source {
	return func(r *http.Request) (string, error) {
		id := chi.URLParam(r, name)
		if id == "" {
			return "", fmt.Errorf("%w: url parameter %q", errMissingTargetID, name)
		}
		return id, nil
	}
}

// BodyField reads the id from a top-level field of a JSON object body. The
// body is restored so the handler can decode it again. Numbers are accepted
// and returned in their literal form.
func BodyField(name string) ownership.Source {
	return func(r *http.Request) (string, error) {
		if r.Body == nil {
			return "", fmt.Errorf("%w: body field %q", errMissingTargetID, name)
		}
		data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyFieldBytes+1))
		_ = r.Body.Close()
		if err != nil {
			return "", fmt.Errorf("read body: %w", err)
		}
		if len(data) > maxBodyFieldBytes {
			return "", errors.New("request body too large")
		}
		r.Body = io.NopCloser(bytes.NewReader(data))

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return "", fmt.Errorf("decode body: %w", err)
		}
		raw, ok := fields[name]
		if !ok {
			return "", fmt.Errorf("%w: body field %q", errMissingTargetID, name)
		}

		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s == "" {
				return "", fmt.Errorf("%w: body field %q", errMissingTargetID, name)
			}
			return s, nil
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", fmt.Errorf("body field %q must be a string or number", name)
		}
		return n.String(), nil
	}
}
