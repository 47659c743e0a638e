package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BerniceZTT/dialer_end/models"
	"github.com/BerniceZTT/dialer_end/service"
	"github.com/BerniceZTT/dialer_end/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", AuthMiddleware(), func(c *gin.Context) {
		actor, _ := service.ActorFromContext(c.Request.Context())
		c.String(http.StatusOK, actor)
	})
	r.DELETE("/leads", AuthMiddleware(), PermissionMiddleware("leads", "delete"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func request(r http.Handler, method, path, tok string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	utils.SetJWTSecret("middleware-test-secret")
	r := newAuthRouter()

	tok, err := utils.GenerateToken(utils.LoginUser{ID: "alice", Role: string(models.UserRoleCALLER), Username: "alice"}, time.Hour)
	require.NoError(t, err)

	w := request(r, http.MethodGet, "/whoami", tok)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())

	w = request(r, http.MethodGet, "/whoami", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = request(r, http.MethodGet, "/whoami", tok+"tampered")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPermissionMiddleware(t *testing.T) {
	utils.SetJWTSecret("middleware-test-secret")
	r := newAuthRouter()

	caller, err := utils.GenerateToken(utils.LoginUser{ID: "alice", Role: string(models.UserRoleCALLER), Username: "alice"}, time.Hour)
	require.NoError(t, err)
	manager, err := utils.GenerateToken(utils.LoginUser{ID: "mgr", Role: string(models.UserRoleSALES_MANAGER), Username: "mgr"}, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, request(r, http.MethodDelete, "/leads", caller).Code)
	assert.Equal(t, http.StatusNoContent, request(r, http.MethodDelete, "/leads", manager).Code)
}
