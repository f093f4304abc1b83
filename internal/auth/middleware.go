package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	loggerpkg "Recipe-Chain/pkg/logger"
)

// TokenAuthenticator 校验静态 bearer token。
type TokenAuthenticator struct {
	tokens []TokenConfig
	audit  *slog.Logger
}

// NewTokenAuthenticator 创建认证器。没有配置 token 时认证关闭。
func NewTokenAuthenticator(tokens []TokenConfig) *TokenAuthenticator {
	kept := make([]TokenConfig, 0, len(tokens))
	for _, tok := range tokens {
		if strings.TrimSpace(tok.Token) == "" {
			continue
		}
		kept = append(kept, tok)
	}
	return &TokenAuthenticator{tokens: kept}
}

// Enabled 判断是否配置了 token。
func (a *TokenAuthenticator) Enabled() bool {
	return a != nil && len(a.tokens) > 0
}

// Authenticate 解析 Authorization 头。
func (a *TokenAuthenticator) Authenticate(authorization string) (*Subject, error) {
	raw := strings.TrimSpace(authorization)
	if raw == "" {
		return nil, ErrMissingToken
	}
	const prefix = "bearer "
	if len(raw) <= len(prefix) || !strings.EqualFold(raw[:len(prefix)], prefix) {
		return nil, ErrInvalidToken
	}
	presented := []byte(strings.TrimSpace(raw[len(prefix):]))
	for _, tok := range a.tokens {
		if subtle.ConstantTimeCompare(presented, []byte(tok.Token)) == 1 {
			subject := &Subject{Name: tok.Subject, Permissions: append([]string(nil), tok.Permissions...)}
			subject.normalise()
			return subject, nil
		}
	}
	return nil, ErrInvalidToken
}

// MiddlewareConfig 配置身份认证中间件的行为。
type MiddlewareConfig struct {
	// RequiredPermissions 定义每个 HTTP 方法所需的权限列表，"*" 作为缺省。
	RequiredPermissions map[string][]string
	// AuditEvent 指定记录审计日志时使用的事件名称。
	AuditEvent string
}

// Middleware 返回一个 HTTP 中间件，用于处理身份认证和授权。
func (a *TokenAuthenticator) Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			subject, err := a.Authenticate(r.Header.Get("Authorization"))
			if err != nil {
				status := http.StatusUnauthorized
				writeDenied(w, status, CodeUnauthenticated, err)
				a.auditLogger().Warn("access_denied",
					"path", r.URL.Path,
					"method", r.Method,
					"status", status,
					"error", err.Error(),
				)
				return
			}
			perms := cfg.RequiredPermissions[r.Method]
			if len(perms) == 0 {
				perms = cfg.RequiredPermissions["*"]
			}
			if err := subject.Authorize(perms...); err != nil {
				status, code := http.StatusForbidden, CodePermissionDenied
				if !errors.Is(err, ErrPermissionDenied) {
					status, code = http.StatusUnauthorized, CodeUnauthenticated
				}
				writeDenied(w, status, code, err)
				a.auditLogger().Warn("permission_denied",
					"path", r.URL.Path,
					"method", r.Method,
					"status", status,
					"error", err.Error(),
					"subject", subject.Name,
				)
				return
			}
			start := time.Now()
			aw := &auditWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(aw, r.WithContext(WithSubject(r.Context(), subject)))
			event := cfg.AuditEvent
			if event == "" {
				event = r.URL.Path
			}
			a.auditLogger().Info("api_request",
				"event", event,
				"method", r.Method,
				"path", r.URL.Path,
				"status", aw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"subject", subject.Name,
			)
		})
	}
}

func (a *TokenAuthenticator) auditLogger() *slog.Logger {
	if a.audit != nil {
		return a.audit
	}
	return loggerpkg.Audit()
}

// writeDenied 以 API 统一的 {"error":{"code","message"}} 结构返回拒绝原因。
func writeDenied(w http.ResponseWriter, status int, code string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]map[string]string{
		"error": {"code": code, "message": err.Error()},
	})
}

// auditWriter 包装 http.ResponseWriter 以捕获响应状态码。
type auditWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader 捕获响应状态码并调用底层的 WriteHeader 方法。
func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
