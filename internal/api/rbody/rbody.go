// Package rbody holds the JSON request/response plumbing shared by the
// HTTP handlers.
package rbody

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"pairbench/server/pkg/errmap"
	"pairbench/server/pkg/idwrap"
)

// maxBodyBytes caps request bodies well above the largest allowed file
// payload so oversized uploads fail in validation, not in decoding.
const maxBodyBytes = 4 << 20

func DecodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errmap.New(errmap.CodeValidation, "failed to read request body", err)
	}
	if len(body) == 0 {
		return errmap.New(errmap.CodeValidation, "request body is required", nil)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errmap.Newf(errmap.CodeValidation, "invalid JSON body: %v", err)
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response body", "error", err)
	}
}

// WriteError maps any error onto the wire error shape. Unclassified errors
// are logged and reported as unexpected without leaking their message.
func WriteError(w http.ResponseWriter, err error) {
	mapped := errmap.Map(err)
	var apiErr *errmap.Error
	if !errors.As(mapped, &apiErr) {
		apiErr = errmap.New(errmap.CodeUnexpected, "internal server error", err)
	}
	if apiErr.Code == errmap.CodeUnexpected {
		slog.Error("unhandled error", "error", err)
	}
	WriteJSON(w, errmap.HTTPStatus(apiErr), map[string]string{
		"code":    string(apiErr.Code),
		"message": apiErr.Error(),
	})
}

// QueryID parses the named query parameter as a ULID.
func QueryID(r *http.Request, name string) (idwrap.IDWrap, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return idwrap.IDWrap{}, errmap.Newf(errmap.CodeValidation, "missing %s query parameter", name)
	}
	id, err := idwrap.NewText(v)
	if err != nil {
		return idwrap.IDWrap{}, errmap.Newf(errmap.CodeValidation, "invalid %s: not a ULID", name)
	}
	return id, nil
}

// PathID parses the named path segment as a ULID.
func PathID(r *http.Request, name string) (idwrap.IDWrap, error) {
	v := r.PathValue(name)
	if v == "" {
		return idwrap.IDWrap{}, errmap.Newf(errmap.CodeValidation, "missing %s path parameter", name)
	}
	id, err := idwrap.NewText(v)
	if err != nil {
		return idwrap.IDWrap{}, errmap.Newf(errmap.CodeValidation, "invalid %s: not a ULID", name)
	}
	return id, nil
}
