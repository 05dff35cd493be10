package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// LogMiddleware は各HTTPリクエストのメソッド、パス、処理時間、接続元をログに出します。
// レスポンスライターは包まないので、WebSocket のアップグレードにもそのまま使えます。
func LogMiddleware(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := r.URL.Path
			method := r.Method

			next.ServeHTTP(w, r)

			fields := logrus.Fields{
				"method":   method,
				"path":     path,
				"duration": time.Since(start),
				"remote":   r.RemoteAddr,
			}
			if reqID := chimw.GetReqID(r.Context()); reqID != "" {
				fields["request_id"] = reqID
			}
			logger.WithFields(fields).Info("HTTP Request")
		})
	}
}

// LogWebSocketConnect は認証済みの WebSocket 接続をログに出します。
func LogWebSocketConnect(logger *logrus.Logger, remoteAddr, userID string) {
	logger.WithFields(logrus.Fields{
		"remote":  remoteAddr,
		"user_id": userID,
	}).Info("WebSocket connected")
}
