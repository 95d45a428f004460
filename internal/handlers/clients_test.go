package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wildme/houston/internal/middleware"
	"github.com/wildme/houston/internal/models"
	"github.com/wildme/houston/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clientRouter wires the client handler behind a stub that injects the
// authenticated principal, standing in for the bearer gate.
func clientRouter(f *tokenFixture, caller *models.User) *gin.Engine {
	clients := services.NewClientService(f.store, f.config, nil)
	handler := NewClientHandler(clients)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUser, caller)
		c.Next()
	})
	router.GET("/auth/oauth2_clients/", handler.List)
	return router
}

func TestListClients_OwnOnly(t *testing.T) {
	f := newTokenFixture(t)
	router := clientRouter(f, f.user)

	t.Run("no user_id lists the caller's clients", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/oauth2_clients/", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), f.client.ClientID)
	})

	t.Run("own user_id is accepted", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
			"/auth/oauth2_clients/?user_id="+f.user.ID, nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("foreign user_id is refused", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
			"/auth/oauth2_clients/?user_id=somebody-else", nil))
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.NotContains(t, w.Body.String(), f.client.ClientID)
	})
}
