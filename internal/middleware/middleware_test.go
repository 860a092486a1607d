package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"smartdoc-go/internal/model"
	"smartdoc-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeUsers struct {
	users   map[string]*model.User
	revoked map[string]bool
}

func (f *fakeUsers) Register(string, string) (*model.User, error) { return nil, errors.New("unused") }
func (f *fakeUsers) Login(string, string) (string, string, error) {
	return "", "", errors.New("unused")
}
func (f *fakeUsers) GetProfile(username string) (*model.User, error) {
	u, ok := f.users[username]
	if !ok {
		return nil, errors.New("not found")
	}
	return u, nil
}
func (f *fakeUsers) Logout(context.Context, *token.CustomClaims) error { return nil }
func (f *fakeUsers) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	return f.revoked[jti], nil
}
func (f *fakeUsers) RefreshToken(context.Context, string) (string, string, error) {
	return "", "", errors.New("unused")
}

func newAuthRouter(jwtManager *token.JWTManager, users *fakeUsers) *gin.Engine {
	r := gin.New()
	r.Use(AuthMiddleware(jwtManager, users))
	r.GET("/me", func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, user.Username)
	})
	return r
}

func get(r http.Handler, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	jwtManager := token.NewJWTManager("secret", 1, 7)
	users := &fakeUsers{
		users:   map[string]*model.User{"alice": {ID: 1, Username: "alice"}},
		revoked: map[string]bool{},
	}
	r := newAuthRouter(jwtManager, users)

	access, err := jwtManager.GenerateToken(1, "alice", "USER")
	require.NoError(t, err)
	refresh, err := jwtManager.GenerateRefreshToken(1, "alice", "USER")
	require.NoError(t, err)
	ghost, err := jwtManager.GenerateToken(9, "ghost", "USER")
	require.NoError(t, err)

	w := get(r, "/me", access)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())

	assert.Equal(t, http.StatusOK, get(r, "/me?token="+access, "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "garbage").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", refresh).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", ghost).Code)

	claims, err := jwtManager.VerifyToken(access)
	require.NoError(t, err)
	users.revoked[claims.ID] = true
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", access).Code)
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(2)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(contextUserKey, &model.User{ID: 7})
		c.Next()
	}, l.Middleware())
	r.GET("/ask", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, get(r, "/ask", "").Code)
	assert.Equal(t, http.StatusOK, get(r, "/ask", "").Code)
	w := get(r, "/ask", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	// 其他用户有独立的令牌桶
	assert.True(t, l.Allow("user:8"))
}

func TestRateLimiter_Disabled(t *testing.T) {
	l := NewRateLimiter(0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("user:1"))
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	w := get(r, "/", "")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.Equal(t, w.Header().Get(RequestIDHeader), w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Body.String())
}
