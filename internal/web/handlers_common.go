package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/repsync/internal/core"
)

// multipartMemory is how much of a sync upload is buffered in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// parseBoolForm reads a checkbox-style form value. Empty is false.
func parseBoolForm(r *http.Request, name string) (bool, error) {
	val := strings.TrimSpace(r.FormValue(name))
	if val == "" {
		return false, nil
	}
	if strings.EqualFold(val, "on") {
		return true, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%s: %q is not a boolean", name, val)
	}
	return b, nil
}

// formFile returns the named upload, or nil when the field is absent.
// The caller closes the file.
func formFile(r *http.Request, field string) (*core.InputFile, multipart.File, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read %s upload: %w", field, err)
	}
	return &core.InputFile{Name: header.Filename, Reader: file}, file, nil
}

// isTooLarge reports whether err came from an http.MaxBytesReader limit.
func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	// mime/multipart does not always wrap the reader error.
	return err != nil && strings.Contains(err.Error(), "request body too large")
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
