package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	loggerpkg "hedera-agent-kit/pkg/logger"
)

// MiddlewareConfig 配置身份认证中间件的行为。
type MiddlewareConfig struct {
	// RequiredPermissions 以 HTTP 方法为键，"*" 作为兜底。
	RequiredPermissions map[string][]string
	// AuditEvent 为空时使用请求路径作为事件名。
	AuditEvent string
}

func (c MiddlewareConfig) permissionsFor(method string) []string {
	if perms := c.RequiredPermissions[method]; len(perms) > 0 {
		return perms
	}
	return c.RequiredPermissions["*"]
}

// Middleware 校验 Bearer 令牌与方法所需权限，并把调用方写入请求上下文。
// 认证关闭时请求原样放行。
func (s *Service) Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			subject, err := s.AuthenticateRequest(r.Context(), r.Header.Get("Authorization"))
			if err == nil {
				err = subject.Authorize(cfg.permissionsFor(r.Method)...)
			}
			if err != nil {
				s.deny(w, r, subject, err)
				return
			}

			start := time.Now()
			aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(aw, r.WithContext(WithSubject(r.Context(), subject)))

			event := cfg.AuditEvent
			if event == "" {
				event = r.URL.Path
			}
			s.auditLogger().Info("api_request",
				"event", event,
				"method", r.Method,
				"status", aw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"subject", subject.Username,
			)
		})
	}
}

// deny 写出 401/403 并记录审计日志。subject 在认证失败时为 nil。
func (s *Service) deny(w http.ResponseWriter, r *http.Request, subject *Subject, err error) {
	status := http.StatusUnauthorized
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrSubjectRevoked) {
		status = http.StatusForbidden
	} else {
		w.Header().Set("WWW-Authenticate", `Bearer realm="hedera-agent"`)
	}
	http.Error(w, http.StatusText(status), status)

	attrs := []any{"path", r.URL.Path, "method", r.Method, "status", status, "remote", r.RemoteAddr, "error", err.Error()}
	if subject != nil {
		attrs = append(attrs, "subject", subject.Username)
	}
	s.auditLogger().Warn("access_denied", attrs...)
}

func (s *Service) auditLogger() *slog.Logger {
	if s.audit != nil {
		return s.audit
	}
	return loggerpkg.Audit()
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
