package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/apprentice-tracker/internal/model"
)

// ApprenticeServiceInterface は見習いハンドラーが必要とするサービスインターフェース。
type ApprenticeServiceInterface interface {
	Create(ctx context.Context, actor *model.User, in model.ApprenticeInput) (*model.ApprenticeWithCreator, error)
	Get(ctx context.Context, id string) (*model.ApprenticeWithCreator, error)
	List(ctx context.Context) ([]*model.ApprenticeWithCreator, error)
	Update(ctx context.Context, actor *model.User, id string, in model.ApprenticeInput) (*model.ApprenticeWithCreator, error)
	Delete(ctx context.Context, actor *model.User, id string) (*model.ApprenticeWithCreator, error)
}

// ApprenticeHandler は見習い管理のHTTPハンドラー。
type ApprenticeHandler struct {
	service ApprenticeServiceInterface
}

// NewApprenticeHandler はApprenticeHandlerを生成する。
func NewApprenticeHandler(service ApprenticeServiceInterface) *ApprenticeHandler {
	return &ApprenticeHandler{service: service}
}

// apprenticeRequest は見習い作成・更新リクエストのボディ。
type apprenticeRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Age        int    `json:"age"`
	CohortYear int    `json:"cohort_year"`
	JobRole    string `json:"job_role"`
	Skills     string `json:"skills"`
}

func (req apprenticeRequest) toInput() model.ApprenticeInput {
	return model.ApprenticeInput{
		Name:       req.Name,
		Email:      req.Email,
		Age:        req.Age,
		CohortYear: req.CohortYear,
		JobRole:    req.JobRole,
		Skills:     req.Skills,
	}
}

// apprenticeResponse は見習い情報のAPIレスポンス。
type apprenticeResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Age             int    `json:"age"`
	CohortYear      int    `json:"cohort_year"`
	JobRole         string `json:"job_role"`
	Skills          string `json:"skills"`
	CreatorUsername string `json:"creator_username"`
}

func toApprenticeResponse(a *model.ApprenticeWithCreator) apprenticeResponse {
	return apprenticeResponse{
		ID:              a.ID,
		Name:            a.Name,
		Email:           a.Email,
		Age:             a.Age,
		CohortYear:      a.CohortYear,
		JobRole:         a.JobRole,
		Skills:          a.Skills,
		CreatorUsername: a.CreatorUsername,
	}
}

// List は全見習いを返す。
// GET /apprentices
func (h *ApprenticeHandler) List(w http.ResponseWriter, r *http.Request) {
	apprentices, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]apprenticeResponse, 0, len(apprentices))
	for _, a := range apprentices {
		resp = append(resp, toApprenticeResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create は見習いを登録する。作成者はログインユーザーになる。
// POST /apprentices
func (h *ApprenticeHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req apprenticeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	a, err := h.service.Create(r.Context(), actor, req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toApprenticeResponse(a))
}

// Get は見習いを返す。
// GET /apprentices/{id}
func (h *ApprenticeHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toApprenticeResponse(a))
}

// Update は見習いを更新する。作成者または管理者のみ。
// PUT /apprentices/{id}
func (h *ApprenticeHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req apprenticeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	a, err := h.service.Update(r.Context(), actor, chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toApprenticeResponse(a))
}

// Delete は見習いを削除し、削除前の内容を返す。管理者のみ。
// DELETE /apprentices/{id}
func (h *ApprenticeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}

	a, err := h.service.Delete(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toApprenticeResponse(a))
}
