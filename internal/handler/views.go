package handler

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/hitoshi/apprentice-tracker/internal/middleware"
	"github.com/hitoshi/apprentice-tracker/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	indexTemplate     = template.Must(template.ParseFS(templateFS, "templates/index.html"))
	dashboardTemplate = template.Must(template.ParseFS(templateFS, "templates/dashboard.html"))
)

// indexView はトップページの表示内容。
type indexView struct {
	Message   string
	CSRFToken string
}

// dashboardView はダッシュボードの表示内容。
type dashboardView struct {
	Title     string
	Username  string
	IsAdmin   bool
	CSRFToken string
}

// dashboardTitle は管理者なら "Welcome, Admin's Dashboard"、それ以外はユーザー名入りのタイトルを返す。
func dashboardTitle(user *model.User) string {
	if user.IsAdmin {
		return "Welcome, Admin's Dashboard"
	}
	return "Welcome, " + user.Username + "'s Dashboard"
}

// renderHTML はテンプレートをバッファに描画してから書き込む。
func renderHTML(w http.ResponseWriter, r *http.Request, statusCode int, tmpl *template.Template, data any) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		slog.Error("failed to render template",
			slog.String("template", tmpl.Name()),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	if r.Method != http.MethodHead {
		buf.WriteTo(w)
	}
}
