package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/apprentice-tracker/internal/model"
	"github.com/hitoshi/apprentice-tracker/internal/review"
)

// multipartMemoryBytes はmultipartの解析でメモリに保持する上限。超過分は一時ファイルに退避される。
const multipartMemoryBytes = 8 << 20

// documentField は添付ファイルのフォームフィールド名。
const documentField = "document"

// ReviewServiceInterface はレビューハンドラーが必要とするサービスインターフェース。
type ReviewServiceInterface interface {
	Create(ctx context.Context, actor *model.User, in model.ReviewInput, doc *review.Document) (*model.ReviewWithAuthor, error)
	Get(ctx context.Context, id string) (*model.ReviewWithAuthor, error)
	List(ctx context.Context) ([]*model.ReviewWithAuthor, error)
	ListByApprentice(ctx context.Context, apprenticeID string) ([]*model.ReviewWithAuthor, error)
	Update(ctx context.Context, actor *model.User, id string, in model.ReviewInput, doc *review.Document) (*model.ReviewWithAuthor, error)
	Delete(ctx context.Context, actor *model.User, id string) (*model.ReviewWithAuthor, error)
	OpenDocument(ctx context.Context, id string) (io.ReadCloser, string, error)
}

// ReviewHandlerConfig はレビューハンドラーの設定。
type ReviewHandlerConfig struct {
	UploadMaxBytes int64 // multipartリクエスト全体の上限
}

// ReviewHandler はレビュー管理のHTTPハンドラー。
type ReviewHandler struct {
	service ReviewServiceInterface
	config  ReviewHandlerConfig
}

// NewReviewHandler はReviewHandlerを生成する。
func NewReviewHandler(service ReviewServiceInterface, config ReviewHandlerConfig) *ReviewHandler {
	return &ReviewHandler{
		service: service,
		config:  config,
	}
}

// reviewResponse はレビュー情報のAPIレスポンス。
// document_pathは添付ファイルが無い場合null。
type reviewResponse struct {
	ID             string  `json:"id"`
	Content        string  `json:"content"`
	ApprenticeID   string  `json:"apprentice_id"`
	ReviewDate     string  `json:"review_date"`
	NextReviewDate string  `json:"next_review_date"`
	DocumentPath   *string `json:"document_path"`
	Completed      bool    `json:"completed"`
	AuthorUsername string  `json:"author_username"`
}

func toReviewResponse(rv *model.ReviewWithAuthor) reviewResponse {
	resp := reviewResponse{
		ID:             rv.ID,
		Content:        rv.Content,
		ApprenticeID:   rv.ApprenticeID,
		ReviewDate:     rv.ReviewDate.Format(model.ReviewDateLayout),
		NextReviewDate: rv.NextReviewDate().Format(model.ReviewDateLayout),
		Completed:      rv.Completed,
		AuthorUsername: rv.AuthorUsername,
	}
	if rv.DocumentPath != "" {
		p := rv.DocumentPath
		resp.DocumentPath = &p
	}
	return resp
}

func toReviewResponses(reviews []*model.ReviewWithAuthor) []reviewResponse {
	resp := make([]reviewResponse, 0, len(reviews))
	for _, rv := range reviews {
		resp = append(resp, toReviewResponse(rv))
	}
	return resp
}

// List は全レビューを返す。
// GET /reviews
func (h *ReviewHandler) List(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReviewResponses(reviews))
}

// ListByApprentice は指定見習いのレビューを返す。
// GET /apprentices/{id}/reviews
func (h *ReviewHandler) ListByApprentice(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.service.ListByApprentice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReviewResponses(reviews))
}

// Create はmultipartフォームからレビューを作成する。
// POST /reviews
func (h *ReviewHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}

	form, err := h.parseReviewForm(w, r)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer form.close()

	rv, err := h.service.Create(r.Context(), actor, form.input, form.document)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toReviewResponse(rv))
}

// Get はレビューを返す。
// GET /reviews/{id}
func (h *ReviewHandler) Get(w http.ResponseWriter, r *http.Request) {
	rv, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReviewResponse(rv))
}

// Update はmultipartフォームからレビューを更新する。執筆者または管理者のみ。
// PUT /reviews/{id}
func (h *ReviewHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}

	form, err := h.parseReviewForm(w, r)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer form.close()

	rv, err := h.service.Update(r.Context(), actor, chi.URLParam(r, "id"), form.input, form.document)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toReviewResponse(rv))
}

// Delete はレビューを削除し、削除前の内容を返す。管理者のみ。
// DELETE /reviews/{id}
func (h *ReviewHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentUser(w, r)
	if !ok {
		return
	}

	rv, err := h.service.Delete(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReviewResponse(rv))
}

// Document はレビューの添付ファイルをダウンロードさせる。
// GET /reviews/{id}/document
func (h *ReviewHandler) Document(w http.ResponseWriter, r *http.Request) {
	rc, name, err := h.service.OpenDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("failed to stream review document",
			slog.String("review_id", chi.URLParam(r, "id")),
			slog.String("error", err.Error()),
		)
	}
}

// reviewForm は解析済みのレビューフォーム。
type reviewForm struct {
	input    model.ReviewInput
	document *review.Document
	file     multipart.File
	form     *multipart.Form
}

// close は添付ファイルと一時ファイルを解放する。
func (f *reviewForm) close() {
	if f.file != nil {
		f.file.Close()
	}
	if f.form != nil {
		f.form.RemoveAll()
	}
}

// parseReviewForm はmultipartフォームを解析する。
// フィールド: content, apprentice_id, review_date (YYYY-MM-DD), completed, document (任意)
func (h *ReviewHandler) parseReviewForm(w http.ResponseWriter, r *http.Request) (*reviewForm, error) {
	if h.config.UploadMaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.config.UploadMaxBytes)
	}

	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return nil, model.NewValidationError(documentField, "upload exceeds the maximum allowed size")
		case errors.Is(err, http.ErrNotMultipart):
			return nil, model.NewValidationError("body", "must be multipart/form-data")
		default:
			return nil, model.NewValidationError("body", "invalid multipart form")
		}
	}

	form := &reviewForm{form: r.MultipartForm}

	reviewDate, err := parseReviewDate(r.PostFormValue("review_date"))
	if err != nil {
		form.close()
		return nil, err
	}
	completed, err := parseCompleted(r.PostFormValue("completed"))
	if err != nil {
		form.close()
		return nil, err
	}

	form.input = model.ReviewInput{
		Content:      r.PostFormValue("content"),
		ApprenticeID: r.PostFormValue("apprentice_id"),
		ReviewDate:   reviewDate,
		Completed:    completed,
	}

	file, header, err := r.FormFile(documentField)
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		form.close()
		return nil, model.NewValidationError(documentField, "could not read uploaded file")
	default:
		form.file = file
		form.document = &review.Document{
			Name:    header.Filename,
			Size:    header.Size,
			Content: file,
		}
	}

	return form, nil
}

// parseReviewDate はYYYY-MM-DD形式の日付を解析する。
func parseReviewDate(v string) (time.Time, error) {
	d, err := time.Parse(model.ReviewDateLayout, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, model.NewValidationError("review_date", "must be a date in YYYY-MM-DD format")
	}
	return d, nil
}

// parseCompleted はチェックボックスの値を解析する。未送信はfalse。
func parseCompleted(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "off":
		return false, nil
	case "on":
		return true, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, model.NewValidationError("completed", "must be a boolean")
	}
	return b, nil
}
