package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/halcyonos/halcyon/internal/models"
	"github.com/halcyonos/halcyon/internal/notifications"
)

// NotificationHandler handles notification-related HTTP requests
type NotificationHandler struct {
	manager *notifications.Manager
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(manager *notifications.Manager) *NotificationHandler {
	return &NotificationHandler{manager: manager}
}

// RegisterRoutes registers notification routes under the API group
func (h *NotificationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("notifications", h.List)
	rg.POST("notifications", h.Create)
	rg.GET("notifications/unread-count", h.UnreadCount)
	rg.DELETE("notifications/:id", h.Delete)
	rg.POST("notifications/delete-before", h.DeleteBefore)
}

// List returns a page of notifications, newest first
// GET /api/v1/notifications?before=<id>&limit=<n>
func (h *NotificationHandler) List(c *gin.Context) {
	var before *int64
	if raw := c.Query("before"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid before cursor"})
			return
		}
		before = &id
	}

	limit := uint(0)
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = uint(n)
	}

	items, err := h.manager.List(c.Request.Context(), before, limit)
	if err != nil {
		log.Printf("[API] Failed to list notifications: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": items,
		"count":         len(items),
	})
}

// Create records a notification
// POST /api/v1/notifications
func (h *NotificationHandler) Create(c *gin.Context) {
	var req struct {
		PackageID *string `json:"package-id"`
		Level     string  `json:"level" binding:"required"`
		Title     string  `json:"title" binding:"required"`
		Message   string  `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	level, err := notifications.ParseLevel(req.Level)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid level: " + req.Level})
		return
	}

	var pkgID *models.PackageID
	if req.PackageID != nil {
		id := models.PackageID(*req.PackageID)
		if !id.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid package id: " + *req.PackageID})
			return
		}
		pkgID = &id
	}

	if err := h.manager.Notify(c.Request.Context(), pkgID, level, req.Title, req.Message, nil, nil); err != nil {
		log.Printf("[API] Failed to create notification: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create notification"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Notification created"})
}

// UnreadCount returns the current unread counter
// GET /api/v1/notifications/unread-count
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	count, err := h.manager.UnreadCount(c.Request.Context())
	if err != nil {
		log.Printf("[API] Failed to read unread count: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read unread count"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

// Delete removes a single notification by id
// DELETE /api/v1/notifications/:id
func (h *NotificationHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notification id"})
		return
	}

	if err := h.manager.Delete(c.Request.Context(), id); err != nil {
		log.Printf("[API] Failed to delete notification %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete notification"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notification deleted"})
}

// DeleteBefore removes every notification with an id strictly below the cursor
// POST /api/v1/notifications/delete-before
func (h *NotificationHandler) DeleteBefore(c *gin.Context) {
	var req struct {
		Before int64 `json:"before" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if err := h.manager.DeleteBefore(c.Request.Context(), req.Before); err != nil {
		log.Printf("[API] Failed to delete notifications before %d: %v", req.Before, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notifications deleted"})
}
