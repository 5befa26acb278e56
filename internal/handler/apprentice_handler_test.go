package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/apprentice-tracker/internal/model"
)

func TestApprenticeHandler_List(t *testing.T) {
	svc := &mockApprenticeService{
		listFn: func(ctx context.Context) ([]*model.ApprenticeWithCreator, error) {
			a := sampleApprentice()
			orphan := sampleApprentice()
			orphan.ID = "appr-2"
			orphan.CreatorID = ""
			orphan.CreatorUsername = model.DeletedUserName
			return []*model.ApprenticeWithCreator{a, orphan}, nil
		},
	}
	h := NewApprenticeHandler(svc)

	w := httptest.NewRecorder()
	h.List(w, withUser(httptest.NewRequest(http.MethodGet, "/apprentices", nil), testRegular))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body []apprenticeResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(body) != 2 {
		t.Fatalf("len = %d, want 2", len(body))
	}
	if body[0].CreatorUsername != "alice" {
		t.Errorf("creator_username = %q, want alice", body[0].CreatorUsername)
	}
	if body[1].CreatorUsername != "Deleted User" {
		t.Errorf("creator_username = %q, want Deleted User", body[1].CreatorUsername)
	}
}

func TestApprenticeHandler_List_EmptyIsArray(t *testing.T) {
	h := NewApprenticeHandler(&mockApprenticeService{})

	w := httptest.NewRecorder()
	h.List(w, withUser(httptest.NewRequest(http.MethodGet, "/apprentices", nil), testRegular))

	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestApprenticeHandler_Create(t *testing.T) {
	var got model.ApprenticeInput
	svc := &mockApprenticeService{
		createFn: func(ctx context.Context, actor *model.User, in model.ApprenticeInput) (*model.ApprenticeWithCreator, error) {
			if actor.ID != testRegular.ID {
				t.Errorf("actor = %q, want %q", actor.ID, testRegular.ID)
			}
			got = in
			return sampleApprentice(), nil
		},
	}
	h := NewApprenticeHandler(svc)

	body := `{"name":"Bob","email":"bob@example.com","age":22,"cohort_year":2024,"job_role":"developer","skills":"go, sql"}`
	req := withUser(httptest.NewRequest(http.MethodPost, "/apprentices", strings.NewReader(body)), testRegular)
	w := httptest.NewRecorder()
	h.Create(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	want := model.ApprenticeInput{Name: "Bob", Email: "bob@example.com", Age: 22, CohortYear: 2024, JobRole: "developer", Skills: "go, sql"}
	if got != want {
		t.Errorf("input = %+v, want %+v", got, want)
	}

	var resp apprenticeResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.ID != "appr-1" || resp.CreatorUsername != "alice" {
		t.Errorf("response = %+v", resp)
	}
}

func TestApprenticeHandler_Create_ValidationError(t *testing.T) {
	svc := &mockApprenticeService{
		createFn: func(ctx context.Context, actor *model.User, in model.ApprenticeInput) (*model.ApprenticeWithCreator, error) {
			return nil, model.NewValidationError("email", "must be a valid email address")
		},
	}
	h := NewApprenticeHandler(svc)

	req := withUser(httptest.NewRequest(http.MethodPost, "/apprentices", strings.NewReader(`{"name":"Bob","email":"nope"}`)), testRegular)
	w := httptest.NewRecorder()
	h.Create(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestApprenticeHandler_Get(t *testing.T) {
	tests := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{"存在する", "appr-1", http.StatusOK},
		{"存在しない", "missing", http.StatusNotFound},
	}

	svc := &mockApprenticeService{
		getFn: func(ctx context.Context, id string) (*model.ApprenticeWithCreator, error) {
			if id == "appr-1" {
				return sampleApprentice(), nil
			}
			return nil, model.NewApprenticeNotFoundError()
		},
	}
	h := NewApprenticeHandler(svc)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withUser(withURLParam(httptest.NewRequest(http.MethodGet, "/apprentices/"+tt.id, nil), "id", tt.id), testRegular)
			w := httptest.NewRecorder()
			h.Get(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestApprenticeHandler_Update_ForbiddenForNonCreator(t *testing.T) {
	svc := &mockApprenticeService{
		updateFn: func(ctx context.Context, actor *model.User, id string, in model.ApprenticeInput) (*model.ApprenticeWithCreator, error) {
			return nil, model.NewForbiddenError("Not authorised to edit this apprentice")
		},
	}
	h := NewApprenticeHandler(svc)

	other := &model.User{ID: "user-2", Username: "mallory"}
	req := httptest.NewRequest(http.MethodPut, "/apprentices/appr-1", strings.NewReader(`{"name":"X","email":"x@example.com"}`))
	req = withUser(withURLParam(req, "id", "appr-1"), other)
	w := httptest.NewRecorder()
	h.Update(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if !strings.Contains(w.Body.String(), "Not authorised to edit this apprentice") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestApprenticeHandler_Delete_ReturnsLastProjection(t *testing.T) {
	svc := &mockApprenticeService{
		deleteFn: func(ctx context.Context, actor *model.User, id string) (*model.ApprenticeWithCreator, error) {
			if !actor.IsAdmin {
				return nil, model.NewForbiddenError("Unauthorised")
			}
			return sampleApprentice(), nil
		},
	}
	h := NewApprenticeHandler(svc)

	req := withUser(withURLParam(httptest.NewRequest(http.MethodDelete, "/apprentices/appr-1", nil), "id", "appr-1"), testAdmin)
	w := httptest.NewRecorder()
	h.Delete(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp apprenticeResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.Name != "Bob" {
		t.Errorf("name = %q, want Bob", resp.Name)
	}

	req = withUser(withURLParam(httptest.NewRequest(http.MethodDelete, "/apprentices/appr-1", nil), "id", "appr-1"), testRegular)
	w = httptest.NewRecorder()
	h.Delete(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("regular user status = %d, want %d", w.Code, http.StatusForbidden)
	}
}
