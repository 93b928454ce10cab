package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"learnhub_backend/internal/config"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "middleware-test-secret"

type memorySessions struct {
	ids map[string]bool
	err error
}

func (m *memorySessions) Create(ctx context.Context, sessionID string, userID uint, ttl time.Duration) error {
	m.ids[sessionID] = true
	return nil
}

func (m *memorySessions) Exists(ctx context.Context, sessionID string) (bool, error) {
	return m.ids[sessionID], m.err
}

func (m *memorySessions) Delete(ctx context.Context, sessionID string) error {
	delete(m.ids, sessionID)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{LoginURL: "/login"},
		JWT:    config.JWTConfig{Secret: secret, ExpireTime: time.Hour},
	}
}

func signed(t *testing.T, id uint, role model.UserRole, sid string) string {
	t.Helper()
	u := &model.User{Email: "u@example.com", Role: role}
	u.ID = id
	token, err := util.GenerateJWT(u, sid, secret, time.Hour)
	require.NoError(t, err)
	return token
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		actor := CurrentActor(c)
		c.JSON(http.StatusOK, gin.H{"user": actor.UserID, "role": actor.Role})
	})
	r.GET("/p", handlers...)
	return r
}

func serve(r *gin.Engine, target, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	cfg := testConfig()
	r := newRouter(AuthMiddleware(cfg, nil))
	token := signed(t, 7, model.Student, "s1")

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"bearer header", "/p", "Bearer " + token, http.StatusOK},
		{"query token", "/p?token=" + token, "", http.StatusOK},
		{"missing", "/p", "", http.StatusUnauthorized},
		{"wrong scheme", "/p", "Basic " + token, http.StatusUnauthorized},
		{"garbage", "/p", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"unknown role", "/p", "Bearer " + signed(t, 7, model.UserRole("root"), "s1"), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, tt.target, tt.header)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	other := &config.Config{JWT: config.JWTConfig{Secret: "another-secret"}}
	w := serve(newRouter(AuthMiddleware(other, nil)), "/p", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "token signed with a different secret")
}

func TestAuthMiddlewareSessions(t *testing.T) {
	cfg := testConfig()
	sessions := &memorySessions{ids: map[string]bool{"live": true}}
	r := newRouter(AuthMiddleware(cfg, sessions))

	assert.Equal(t, http.StatusOK, serve(r, "/p", "Bearer "+signed(t, 1, model.Student, "live")).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/p", "Bearer "+signed(t, 1, model.Student, "gone")).Code)

	require.NoError(t, sessions.Delete(context.Background(), "live"))
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/p", "Bearer "+signed(t, 1, model.Student, "live")).Code)

	sessions.err = errors.New("redis down")
	sessions.ids["live"] = true
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/p", "Bearer "+signed(t, 1, model.Student, "live")).Code)
}

func TestPageAuthMiddleware(t *testing.T) {
	cfg := testConfig()
	r := newRouter(PageAuthMiddleware(cfg, nil))

	w := serve(r, "/p?lesson_id=3&file=a.pdf", "")
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?next=%2Fp%3Flesson_id%3D3%26file%3Da.pdf", w.Header().Get("Location"))

	cfg.Server.LoginURL = "/auth?from=download"
	w = serve(r, "/p", "")
	assert.Equal(t, "/auth?from=download&next=%2Fp", w.Header().Get("Location"))

	w = serve(r, "/p", "Bearer "+signed(t, 3, model.Instructor, "s"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoleMiddleware(t *testing.T) {
	cfg := testConfig()
	r := newRouter(AuthMiddleware(cfg, nil), RoleMiddleware(model.Instructor))

	assert.Equal(t, http.StatusOK, serve(r, "/p", "Bearer "+signed(t, 1, model.Instructor, "s")).Code)
	assert.Equal(t, http.StatusOK, serve(r, "/p", "Bearer "+signed(t, 1, model.Admin, "s")).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, "/p", "Bearer "+signed(t, 1, model.Student, "s")).Code)

	bare := newRouter(RoleMiddleware(model.Student))
	assert.Equal(t, http.StatusUnauthorized, serve(bare, "/p", "").Code)
}

func TestRequestID(t *testing.T) {
	r := newRouter(RequestID())

	w := serve(r, "/p", "")
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}
