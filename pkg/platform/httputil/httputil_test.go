package httputil

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dErrors "auditgov/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "internal_error" {
			t.Fatalf("expected error code internal_error, got %q", body["error"])
		}
		if _, ok := body["error_description"]; ok {
			t.Fatalf("expected error_description to be omitted for internal errors")
		}
	})

	t.Run("bad request includes description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid input"))

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "bad_request" {
			t.Fatalf("expected error code bad_request, got %q", body["error"])
		}
		if body["error_description"] != "invalid input" {
			t.Fatalf("expected error_description to be returned for bad request")
		}
	})

	t.Run("governance codes map to statuses", func(t *testing.T) {
		cases := map[dErrors.Code]int{
			dErrors.CodeForbidden:     http.StatusForbidden,
			dErrors.CodeConflict:      http.StatusConflict,
			dErrors.CodeNotFound:      http.StatusNotFound,
			dErrors.CodeValidation:    http.StatusBadRequest,
			dErrors.CodeLimitExceeded: http.StatusUnprocessableEntity,
		}
		for code, status := range cases {
			w := httptest.NewRecorder()
			WriteError(w, dErrors.New(code, "x"))
			if w.Code != status {
				t.Fatalf("%s: expected status %d, got %d", code, status, w.Code)
			}
		}
	})

	t.Run("plain errors are internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, io.ErrUnexpectedEOF)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", w.Code)
		}
	})
}

type commentRequest struct {
	Comment string `json:"comment" validate:"required,max=2000"`
}

func (r *commentRequest) Normalize() {
	r.Comment = strings.TrimSpace(r.Comment)
}

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("normalizes and accepts a valid body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"comment":"  ok  "}`))
		w := httptest.NewRecorder()
		req, ok := DecodeAndPrepare[commentRequest](w, r, logger, r.Context(), "req-1")
		if !ok {
			t.Fatalf("expected decode to succeed, got status %d", w.Code)
		}
		if req.Comment != "ok" {
			t.Fatalf("expected trimmed comment, got %q", req.Comment)
		}
	})

	t.Run("whitespace-only field fails tag validation", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"comment":"   "}`))
		w := httptest.NewRecorder()
		_, ok := DecodeAndPrepare[commentRequest](w, r, logger, r.Context(), "req-2")
		if ok {
			t.Fatalf("expected validation failure")
		}
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"comment":"x","extra":1}`))
		w := httptest.NewRecorder()
		_, ok := DecodeAndPrepare[commentRequest](w, r, logger, r.Context(), "req-3")
		if ok {
			t.Fatalf("expected decode failure")
		}
	})

	t.Run("empty body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
		w := httptest.NewRecorder()
		_, ok := DecodeAndPrepare[commentRequest](w, r, logger, r.Context(), "req-4")
		if ok {
			t.Fatalf("expected failure for empty body")
		}
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})
}
