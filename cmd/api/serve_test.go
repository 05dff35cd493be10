package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/api/middleware"
	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/config"
	"github.com/progate-hackathon-strawberry-flavor/TETRIS-VERSUS-backend/internal/services/realtime"
)

func TestRouter(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	hub := realtime.NewHub(realtime.Config{Logger: logger})
	defer hub.Shutdown()

	cfg := config.Default()
	cfg.JWTSecret = "router-secret"
	router := newRouter(cfg, hub, logger)

	do := func(path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := do("/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","clients":0}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusUnauthorized, do("/api/rooms", "").Code)

	token, err := middleware.SignToken(cfg.JWTSecret, "u1", "", time.Hour)
	require.NoError(t, err)
	rec = do("/api/rooms", token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
	assert.Equal(t, http.StatusNotFound, do("/api/rooms/room_x", token).Code)

	// アップグレードヘッダーのない /ws は 400
	assert.Equal(t, http.StatusBadRequest, do("/ws", "").Code)
}
