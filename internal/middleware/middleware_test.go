package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"order-lifecycle-reconciler/internal/logger"
	"order-lifecycle-reconciler/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(handlers...)
	r.Any("/x", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": c.GetString(ctxUserID)})
	})
	return r
}

func do(r http.Handler, method, origin, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/x", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORS(t *testing.T) {
	r := newRouter(CORS([]string{"http://localhost:3000"}))

	w := do(r, http.MethodGet, "http://localhost:3000", "")
	if w.Code != http.StatusOK || w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("allowed origin: code=%d headers=%v", w.Code, w.Header())
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("credentials header missing")
	}

	w = do(r, http.MethodGet, "http://evil.example", "")
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("disallowed origin got CORS headers")
	}

	w = do(r, http.MethodOptions, "http://localhost:3000", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight code = %d", w.Code)
	}
	w = do(r, http.MethodOptions, "http://evil.example", "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("disallowed preflight code = %d", w.Code)
	}
}

func TestCORS_Wildcard(t *testing.T) {
	r := newRouter(CORS([]string{"*"}))
	w := do(r, http.MethodGet, "https://anything.example", "")
	if w.Header().Get("Access-Control-Allow-Origin") != "https://anything.example" {
		t.Fatalf("headers = %v", w.Header())
	}
}

func TestAuthMiddleware(t *testing.T) {
	auth := service.NewAuthService("", "secret", nil)
	r := newRouter(AuthMiddleware(auth, logger.Nop()), AdminOnly())

	if w := do(r, http.MethodPost, "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", w.Code)
	}
	if w := do(r, http.MethodPost, "", "wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: %d", w.Code)
	}
	if w := do(r, http.MethodPost, "", "secret"); w.Code != http.StatusOK {
		t.Fatalf("valid token: %d", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	r := newRouter(AuthMiddleware(service.NewAuthService("", "", nil), logger.Nop()))
	if w := do(r, http.MethodPost, "", ""); w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
}

func TestAdminOnly_RejectsNonAdmin(t *testing.T) {
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		c.Set(ctxUserPermissions, []string{"user"})
		c.Next()
	}, AdminOnly(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusForbidden {
		t.Fatalf("code = %d", w.Code)
	}
}
