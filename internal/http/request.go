package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"expensync/internal/core"
	"expensync/internal/storage"
)

const maxJSONBody = 1 << 20

// decodeJSON reads a single JSON object into dst and validates it.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w: body larger than %d bytes", errBadRequest, maxErr.Limit)
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: body must contain a single JSON object", errBadRequest)
	}
	return s.validator.Validate(dst)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, core.ErrNotFound
	}
	return id, nil
}

// parseFilter reads from, to, category, limit and offset.
func parseFilter(q url.Values) (core.ExpenseFilter, error) {
	var f core.ExpenseFilter
	var fields ValidationErrors

	if v := strings.TrimSpace(q.Get("from")); v != "" {
		d, err := core.ParseDay(v)
		if err != nil {
			fields = append(fields, FieldError{Field: "from", Message: "from must be in YYYY-MM-DD format"})
		}
		f.From = d
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		d, err := core.ParseDay(v)
		if err != nil {
			fields = append(fields, FieldError{Field: "to", Message: "to must be in YYYY-MM-DD format"})
		}
		f.To = d
	}
	f.Category = strings.TrimSpace(q.Get("category"))

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > storage.MaxListLimit {
			fields = append(fields, FieldError{Field: "limit", Message: fmt.Sprintf("limit must be between 1 and %d", storage.MaxListLimit)})
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fields = append(fields, FieldError{Field: "offset", Message: "offset must be a non-negative integer"})
		}
		f.Offset = n
	}

	if len(fields) > 0 {
		return core.ExpenseFilter{}, fields
	}
	return f, nil
}
