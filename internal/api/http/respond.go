package http

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"

	nethttp "net/http"

	"github.com/mind-engage/coursetrack/internal/apperr"
)

// Handlers only. Routes are assembled in router.go.

const maxJSONBody = 1 << 20

type envelope struct {
	Success bool   `json:"success"`
	Count   *int   `json:"count,omitempty"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w nethttp.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(w nethttp.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

// okList adds a count next to the data, as list endpoints do.
func okList[T any](w nethttp.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	n := len(items)
	writeJSON(w, nethttp.StatusOK, envelope{Success: true, Count: &n, Data: items})
}

func okMessage(w nethttp.ResponseWriter, msg string) {
	writeJSON(w, nethttp.StatusOK, envelope{Success: true, Message: msg})
}

// fail maps err to its status. Unclassified errors are logged and reported
// without detail.
func fail(w nethttp.ResponseWriter, r *nethttp.Request, err error) {
	status := apperr.Status(err)
	msg := err.Error()
	if status == nethttp.StatusInternalServerError {
		loggerFrom(r.Context()).Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "server error"
	}
	writeJSON(w, status, envelope{Success: false, Message: msg})
}

// decode reads a JSON body into dst and runs struct validation on it.
func decode(r *nethttp.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.InvalidInput("request body required")
		}
		return apperr.InvalidInput("bad json: %v", err)
	}
	return validateStruct(dst)
}

func queryInt(r *nethttp.Request, key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil || v < 0 {
		return def
	}
	return v
}
