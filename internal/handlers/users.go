package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/wildme/houston/internal/middleware"
	"github.com/wildme/houston/internal/models"
	"github.com/wildme/houston/internal/services"

	"github.com/gin-gonic/gin"
)

// UserHandler is the user-management resource. Its routes carry the
// fine-grained authorization rules; the handlers themselves stay thin.
type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	IsActive  bool      `json:"is_active"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FullName:  u.FullName,
		IsActive:  u.IsActive,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
	}
}

// List handles GET /api/v1/users/.
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.users.ListUsers()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  http.StatusInternalServerError,
			"message": "failed to list users",
		})
		return
	}

	out := make([]userResponse, 0, len(users))
	for i := range users {
		out = append(out, toUserResponse(&users[i]))
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// Get handles GET /api/v1/users/:id.
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.users.GetUserByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"status":  http.StatusNotFound,
			"message": "user not found",
		})
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

type createUserRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email"    binding:"required"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"full_name"`
}

// Create handles POST /api/v1/users/.
func (h *UserHandler) Create(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  http.StatusBadRequest,
			"message": "username, email, and password are required",
		})
		return
	}

	user, err := h.users.CreateUser(services.CreateUserRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"status":  http.StatusConflict,
			"message": "could not create user",
		})
		return
	}
	c.JSON(http.StatusCreated, toUserResponse(user))
}

// SetAdmin handles POST /api/v1/users/:id/admin. The route's rule demands
// password re-confirmation on top of admin rights; the request is form
// encoded so the rule can read the confirmation password alongside is_admin.
func (h *UserHandler) SetAdmin(c *gin.Context) {
	isAdmin, ok := map[string]bool{"true": true, "false": false}[c.PostForm("is_admin")]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  http.StatusBadRequest,
			"message": "is_admin must be true or false",
		})
		return
	}

	user, err := h.users.SetAdmin(c.Param("id"), isAdmin)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"status":  http.StatusNotFound,
				"message": "user not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  http.StatusInternalServerError,
			"message": "failed to update user",
		})
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

// Deactivate handles DELETE /api/v1/users/:id. Deactivation revokes every
// outstanding token for the user, so access dies now rather than at expiry.
func (h *UserHandler) Deactivate(c *gin.Context) {
	caller := middleware.CurrentUser(c)
	targetID := c.Param("id")

	if targetID == caller.ID {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  http.StatusBadRequest,
			"message": "you cannot deactivate your own account",
		})
		return
	}

	if err := h.users.DeactivateUser(targetID); err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"status":  http.StatusNotFound,
				"message": "user not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  http.StatusInternalServerError,
			"message": "failed to deactivate user",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}
