package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stylemirror/tryon-api/internal/service"
)

// ---- envelope shape ----

func TestWriteErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusNotFound, CodeSessionNotFound, "Session not found")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q", ct)
	}

	var body struct {
		Success bool      `json:"success"`
		Error   ErrorBody `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Success {
		t.Error("success = true, want false")
	}
	if body.Error.Code != CodeSessionNotFound || body.Error.Message != "Session not found" {
		t.Errorf("error = %+v", body.Error)
	}
}

func TestWriteSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccess(rec, http.StatusCreated, map[string]string{"id": "ses_abc"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	var body struct {
		Success bool              `json:"success"`
		Data    map[string]string `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !body.Success || body.Data["id"] != "ses_abc" {
		t.Errorf("body = %+v", body)
	}
}

// ---- service error mapping ----

func TestWriteServiceErrorMapsKnownErrors(t *testing.T) {
	h := NewWidgetHandler(nil, nil)

	rec := httptest.NewRecorder()
	h.writeServiceError(rec, service.ErrSessionExpired)

	if rec.Code != http.StatusGone {
		t.Fatalf("status = %d, want 410", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), CodeSessionExpired) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestWriteServiceErrorFallsBackTo500(t *testing.T) {
	h := NewWidgetHandler(nil, nil)

	rec := httptest.NewRecorder()
	h.writeServiceError(rec, http.ErrBodyNotAllowed)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), CodeInternalError) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

// ---- embed shell ----

func TestWidgetEmbedServesShell(t *testing.T) {
	handler := WidgetEmbed("https://api.stylemirror.example")

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/widget/embed", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "https://api.stylemirror.example/widget/assets/widget.js") {
		t.Errorf("shell missing bundle script: %s", rec.Body.String())
	}
}
