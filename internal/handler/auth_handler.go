package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/apprentice-tracker/internal/middleware"
	"github.com/hitoshi/apprentice-tracker/internal/model"
)

// maxFormBytes はログイン・登録フォームのボディ上限。
const maxFormBytes = 64 << 10

// registrationSucceededMessage は登録成功時にトップページへ表示するメッセージ。
const registrationSucceededMessage = "Registration successful! You can now log in."

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, username, password string) (*model.User, error)
	Login(ctx context.Context, username, password string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はログイン・登録・ログアウトとHTMLビューのハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// Index はログイン・登録フォームを含むトップページを返す。
// GET /, HEAD /
func (h *AuthHandler) Index(w http.ResponseWriter, r *http.Request) {
	renderHTML(w, r, http.StatusOK, indexTemplate, indexView{
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	})
}

// Login はユーザー名とパスワードを検証し、セッションCookieを発行してダッシュボードへリダイレクトする。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	username, password, err := credentialsFromForm(w, r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	session, err := h.service.Login(r.Context(), username, password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

// Register は一般ユーザーを登録し、完了メッセージ付きのトップページを返す。
// POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	username, password, err := credentialsFromForm(w, r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if _, err := h.service.Register(r.Context(), username, password); err != nil {
		handleServiceError(w, err)
		return
	}

	renderHTML(w, r, http.StatusOK, indexTemplate, indexView{
		Message:   registrationSucceededMessage,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	})
}

// Logout はセッションを破棄し、Cookieを削除してトップページへリダイレクトする。
// 未ログインでも常に成功する。
// GET /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID := middleware.SessionIDFromRequest(r); sessionID != "" {
		if err := h.service.Logout(r.Context(), sessionID); err != nil {
			// 失敗してもCookieはクリアする
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/", http.StatusFound)
}

// Dashboard はログインユーザー向けのダッシュボードを返す。
// GET /dashboard
func (h *AuthHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	renderHTML(w, r, http.StatusOK, dashboardTemplate, dashboardView{
		Title:     dashboardTitle(user),
		Username:  user.Username,
		IsAdmin:   user.IsAdmin,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	})
}

// credentialsFromForm はURLエンコードまたはmultipartのフォームからusernameとpasswordを読み取る。
func credentialsFromForm(w http.ResponseWriter, r *http.Request) (string, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseMultipartForm(maxFormBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return "", "", model.NewValidationError("form", "invalid form body")
	}
	return r.PostFormValue("username"), r.PostFormValue("password"), nil
}
