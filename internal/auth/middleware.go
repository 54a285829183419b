package auth

import (
	"encoding/json"
	"net/http"
	"time"

	xerrors "Parry-QV/internal/errors"
)

// Require 返回一个要求 permission 的中间件，并把结果写入审计日志。
// 认证关闭时直接放行。
func (s *Service) Require(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			subject, err := s.Authenticate(r.Header.Get("Authorization"), r.Header.Get("X-API-Key"))
			if err == nil {
				err = subject.Authorize(permission)
			}
			if err != nil {
				status := xerrors.HTTPStatusOf(err)
				s.audit.Warn("access_denied",
					"path", r.URL.Path,
					"method", r.Method,
					"status", status,
					"error", xerrors.UserMessage(err),
				)
				writeDenied(w, status, err)
				return
			}

			start := time.Now()
			aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(aw, r.WithContext(WithSubject(r.Context(), subject)))
			s.audit.Info("api_request",
				"permission", permission,
				"method", r.Method,
				"path", r.URL.Path,
				"status", aw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"caller", subject.Name,
			)
		})
	}
}

func writeDenied(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    string(xerrors.CodeOf(err)),
			"message": xerrors.UserMessage(err),
		},
	})
}

// auditWriter 捕获响应状态码。
type auditWriter struct {
	http.ResponseWriter
	status int
}

func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
