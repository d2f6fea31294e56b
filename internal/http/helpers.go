package http

import (
	"bytes"
	"context"
	"html/template"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"talahum/internal/core"
	applog "talahum/internal/log"
	"talahum/internal/render"
)

// User-facing messages.
const (
	msgInvalidRequest     = "طلب غير صالح"
	msgInvalidPeriod      = "الشهر أو السنة غير صحيحة"
	msgLoadFailed         = "تعذر تحميل بيانات الاشتراكات"
	msgSubscriberNotFound = "المشترك غير موجود في هذا الشهر"
	msgFlowNotFound       = "انتهت صلاحية نافذة الدفع، يرجى فتحها من جديد"
	msgBusy               = "جاري تنفيذ العملية، يرجى الانتظار"
	msgPaymentRecorded    = "تم تسجيل الدفع بنجاح"
	msgReceiptExported    = "تم إنشاء سند الدفع"
	msgReportFailed       = "حدث خطأ أثناء إنشاء التقرير"
	msgRateLimited        = "عدد كبير من الطلبات، يرجى المحاولة لاحقاً"
)

const sessionCookie = "talahum_session"

type sessionKey struct{}

// withSession makes sure the browser carries a dashboard session id; each
// session owns one reconcile.View.
func (s *Server) withSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(sessionCookie); err == nil {
			if _, perr := uuid.Parse(c.Value); perr == nil {
				id = c.Value
			}
		}
		if id == "" {
			id = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookie,
				Value:    id,
				Path:     "/",
				HttpOnly: true,
				Secure:   s.cfg.SecureCookies,
				SameSite: http.SameSiteLaxMode,
			})
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, id)
		next(w, r.WithContext(ctx))
	}
}

func sessionID(r *http.Request) string {
	id, _ := r.Context().Value(sessionKey{}).(string)
	return id
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return id, err == nil && id > 0
}

var templateFuncs = template.FuncMap{
	"monthName": core.MonthName,
}

// renderTemplate executes name into a buffer first so a failing template
// never leaves a half-written response.
func (s *Server) renderTemplate(w http.ResponseWriter, r *http.Request, status int, name string, data any, rb *HTMXResponseBuilder) {
	logger := applog.FromContext(r.Context())
	if s.templates == nil {
		logger.ErrorContext(r.Context(), "Templates not loaded",
			applog.FieldPath, r.URL.Path,
			applog.FieldComponent, applog.ComponentTemplate,
			"error_type", applog.ErrorTypeConfiguration)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		logger.ErrorContext(r.Context(), "Template execution failed",
			applog.FieldError, err,
			"template", name,
			applog.FieldComponent, applog.ComponentTemplate)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	if rb == nil {
		rb = NewHTMXResponse()
	}
	rb.Status(status).BodyHTML(buf.String()).Write(w)
}

// writeArtifact sends a rendered file as a download.
func writeArtifact(w http.ResponseWriter, a render.Artifact) {
	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Body)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.Body)
}
