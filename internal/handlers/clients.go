package handlers

import (
	"errors"
	"net/http"

	"github.com/wildme/houston/internal/middleware"
	"github.com/wildme/houston/internal/models"
	"github.com/wildme/houston/internal/services"

	"github.com/gin-gonic/gin"
)

// ClientHandler manages OAuth2 client registrations over the API.
type ClientHandler struct {
	clients *services.ClientService
}

func NewClientHandler(clients *services.ClientService) *ClientHandler {
	return &ClientHandler{clients: clients}
}

type createClientRequest struct {
	ClientType   string `json:"client_type"`
	ClientName   string `json:"client_name"`
	Scopes       string `json:"scopes"`
	RedirectURIs string `json:"redirect_uris"`
	UserID       string `json:"user_id"`
}

type clientResponse struct {
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret,omitempty"` // present only at creation
	ClientType    string `json:"client_type"`
	ClientName    string `json:"client_name"`
	DefaultScopes string `json:"default_scopes"`
	RedirectURIs  string `json:"redirect_uris"`
	UserID        string `json:"user_id"`
}

func toClientResponse(c *models.OAuthClient, secret string) clientResponse {
	return clientResponse{
		ClientID:      c.ClientID,
		ClientSecret:  secret,
		ClientType:    c.ClientType,
		ClientName:    c.ClientName,
		DefaultScopes: c.DefaultScopes,
		RedirectURIs:  c.RedirectURIs,
		UserID:        c.UserID,
	}
}

// Create handles POST /auth/oauth2_clients/. Clients are always registered
// under the caller's own user; admins may register for other users. The
// secret appears in this response and nowhere else, ever.
func (h *ClientHandler) Create(c *gin.Context) {
	caller := middleware.CurrentUser(c)

	var req createClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  http.StatusBadRequest,
			"message": "invalid request body",
		})
		return
	}

	if req.UserID == "" {
		req.UserID = caller.ID
	}
	if req.UserID != caller.ID && !caller.IsAdmin {
		c.JSON(http.StatusForbidden, gin.H{
			"status":  http.StatusForbidden,
			"message": "clients may only be registered for your own user",
		})
		return
	}

	created, err := h.clients.CreateClient(c.Request.Context(), services.CreateClientRequest{
		ClientType:   req.ClientType,
		ClientName:   req.ClientName,
		Scopes:       req.Scopes,
		RedirectURIs: req.RedirectURIs,
		UserID:       req.UserID,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidScope):
			c.JSON(http.StatusBadRequest, gin.H{
				"status":  http.StatusBadRequest,
				"message": "unrecognized scope requested",
			})
		case errors.Is(err, services.ErrInvalidClientType):
			c.JSON(http.StatusBadRequest, gin.H{
				"status":  http.StatusBadRequest,
				"message": "client_type must be public or confidential",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"status":  http.StatusInternalServerError,
				"message": "failed to create client",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, toClientResponse(created.OAuthClient, created.ClientSecretPlain))
}

// List handles GET /auth/oauth2_clients/?user_id=: the caller's own
// registrations only. A user_id naming anyone else is refused, never
// silently substituted.
func (h *ClientHandler) List(c *gin.Context) {
	caller := middleware.CurrentUser(c)

	if requested := c.Query("user_id"); requested != "" && requested != caller.ID {
		c.JSON(http.StatusForbidden, gin.H{
			"status":  http.StatusForbidden,
			"message": "clients may only be listed for your own user",
		})
		return
	}

	clients, err := h.clients.ListClientsByUser(caller.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  http.StatusInternalServerError,
			"message": "failed to list clients",
		})
		return
	}

	out := make([]clientResponse, 0, len(clients))
	for i := range clients {
		out = append(out, toClientResponse(&clients[i], ""))
	}
	c.JSON(http.StatusOK, gin.H{"clients": out})
}

// Delete handles DELETE /auth/oauth2_clients/:client_id. The ownership rule
// runs before this; tokens issued through the client die with it.
func (h *ClientHandler) Delete(c *gin.Context) {
	caller := middleware.CurrentUser(c)
	clientID := c.Param("client_id")

	if err := h.clients.DeleteClient(c.Request.Context(), clientID, caller.ID); err != nil {
		if errors.Is(err, services.ErrClientNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"status":  http.StatusNotFound,
				"message": "client not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  http.StatusInternalServerError,
			"message": "failed to delete client",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}
