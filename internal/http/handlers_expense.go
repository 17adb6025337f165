package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"expensync/internal/core"
	applog "expensync/internal/log"
	"expensync/internal/photos"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.expenses.List(r.Context(), currentUser(r), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(map[string]any{"expenses": toExpenseList(list)}).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	draft, err := req.toCore()
	if err != nil {
		writeError(w, r, err)
		return
	}

	e, created, err := s.expenses.Create(r.Context(), currentUser(r), draft)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		applog.NewStructuredLogger(applog.FromContext(r.Context())).
			LogExpense(r.Context(), applog.OpCreate, e.UserID, e.ID, e.ClientID, e.Category, e.Amount.Cents)
	}
	NewResponse().
		Status(status).
		Header("Location", "/api/v1/expenses/"+strconv.FormatInt(e.ID, 10)).
		JSON(toExpenseJSON(e)).
		Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.expenses.Get(r.Context(), currentUser(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(toExpenseJSON(e)).Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req expenseRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	changes, err := req.toCore()
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.expenses.Update(r.Context(), currentUser(r), id, changes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(toExpenseJSON(e)).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.expenses.Delete(r.Context(), currentUser(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}

// handleUploadPhoto accepts a multipart form with a "photo" file part.
func (s *Server) handleUploadPhoto(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	max := s.photoMaxBytes
	if max <= 0 {
		max = photos.DefaultMaxBytes
	}
	// Room for multipart headers around the file.
	r.Body = http.MaxBytesReader(w, r.Body, max+64<<10)

	mr, err := r.MultipartReader()
	if err != nil {
		ErrorResponse(http.StatusBadRequest, "expected multipart/form-data body").Write(w)
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			ErrorResponse(http.StatusUnprocessableEntity, "photo is required",
				FieldError{Field: "photo", Message: "photo is required"}).Write(w)
			return
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, photos.ErrTooLarge)
			return
		}
		if err != nil {
			ErrorResponse(http.StatusBadRequest, "malformed multipart body").Write(w)
			return
		}
		if part.FormName() != "photo" {
			part.Close()
			continue
		}

		e, err := s.expenses.AttachPhoto(r.Context(), currentUser(r), id, part)
		part.Close()
		if errors.As(err, &maxErr) {
			err = photos.ErrTooLarge
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		NewResponse().JSON(toExpenseJSON(e)).Write(w)
		return
	}
}

func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rc, contentType, err := s.expenses.OpenPhoto(r.Context(), currentUser(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Photo stream interrupted",
			applog.FieldExpenseID, id, applog.FieldError, err)
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	sum, err := s.expenses.Summary(r.Context(), currentUser(r), core.ExpenseFilter{From: f.From, To: f.To, Category: f.Category})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().JSON(toSummaryJSON(sum)).Write(w)
}
