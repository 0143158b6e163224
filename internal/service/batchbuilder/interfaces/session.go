// internal/service/batchbuilder/interfaces/session.go
package interfaces

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

const (
	SessionHeader  = "X-Builder-Session"
	SessionCookie  = "builder_session"
	MerchantHeader = "X-Merchant-ID"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,128}$`)

type sessionKey struct{}

// SessionFromContext 返回 SessionMiddleware 绑定的会话 id
func SessionFromContext(ctx context.Context) string {
	sid, _ := ctx.Value(sessionKey{}).(string)
	return sid
}

// sessionFromRequest 依次读取请求头、cookie 和 ws 连接使用的 query 参数
func sessionFromRequest(r *http.Request) string {
	if sid := r.Header.Get(SessionHeader); sessionIDPattern.MatchString(sid) {
		return sid
	}
	if c, err := r.Cookie(SessionCookie); err == nil && sessionIDPattern.MatchString(c.Value) {
		return c.Value
	}
	if sid := r.URL.Query().Get("session"); sessionIDPattern.MatchString(sid) {
		return sid
	}
	return ""
}

// SessionMiddleware 为没有会话的请求生成一个新会话，并通过 cookie 和响应头返回给调用方
func SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid := sessionFromRequest(r)
		if sid == "" {
			sid = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    sid,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		w.Header().Set(SessionHeader, sid)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sid)))
	})
}
