// Package users exposes the read-only user API and the in-app phone-number
// flow. User creation and deletion are owned by the identity reconciler;
// nothing here writes identity fields.
package users

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gebeya-labs/identity-sync/internal/directory"
)

// Handler serves the /api/users surface.
type Handler struct {
	directory directory.Store
}

// NewHandler builds the users API over the directory store.
func NewHandler(store directory.Store) *Handler {
	return &Handler{directory: store}
}

// RegisterRoutes mounts the user routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/users", h.listUsers)
	r.GET("/api/users/:id", h.getUser)
	r.PATCH("/api/users/:id/phone", h.updatePhone)
}

func (h *Handler) listUsers(c *gin.Context) {
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	skip, _ := strconv.ParseInt(c.DefaultQuery("skip", "0"), 10, 64)

	users, total, err := h.directory.List(c.Request.Context(), directory.ListFilter{
		ExternalID: c.Query("externalId"),
		Email:      c.Query("email"),
		Role:       c.Query("role"),
		Limit:      limit,
		Skip:       skip,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch users"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users": users,
		"pagination": gin.H{
			"total": total,
			"count": len(users),
			"limit": limit,
			"skip":  skip,
		},
	})
}

// getUser returns the public profile subset for one user.
func (h *Handler) getUser(c *gin.Context) {
	u, err := h.directory.FindByExternalID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, directory.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"firstName":   u.FirstName,
			"lastName":    u.LastName,
			"imageUrl":    u.ImageURL,
			"phoneNumber": u.PhoneNumber,
			"role":        u.Role,
		},
	})
}

// updatePhone sets the phone number collected by the in-app flow. Identity
// events never touch this field.
func (h *Handler) updatePhone(c *gin.Context) {
	var body struct {
		PhoneNumber string `json:"phoneNumber"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.PhoneNumber == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phone number is required"})
		return
	}

	u, err := h.directory.UpdateProfile(c.Request.Context(), c.Param("id"), directory.ProfilePatch{
		PhoneNumber: &body.PhoneNumber,
	})
	if errors.Is(err, directory.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update phone number"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": u})
}
