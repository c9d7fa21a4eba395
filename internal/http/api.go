package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"mood-tracker/internal/auth"
	"mood-tracker/internal/backup"
	"mood-tracker/internal/domain"
	"mood-tracker/internal/moodstore"
	"mood-tracker/internal/service"
	"mood-tracker/internal/storage"
)

// MoodService is the part of the mood store the HTTP layer reads and writes.
type MoodService interface {
	Moods(userID int64) (domain.MoodLog, error)
	SubmitMood(ctx context.Context, userID int64, label string, at time.Time) (string, error)
}

// Handler wires HTTP routes to domain services.
type Handler struct {
	moods   MoodService
	users   service.UserService
	tokens  *auth.Issuer
	backups backup.Manager
	logger  logrus.FieldLogger
	now     func() time.Time
}

// NewHandler builds the API. tokens and backups may be nil, which disables
// bearer tokens and snapshot listing respectively.
func NewHandler(moods MoodService, users service.UserService, tokens *auth.Issuer, backups backup.Manager, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		moods:   moods,
		users:   users,
		tokens:  tokens,
		backups: backups,
		logger:  logger,
		now:     time.Now,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestLogger(h.logger))
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		api.POST("/users", h.createUser)
		api.GET("/users/:id", h.getUser)
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})

		authed := api.Group("", h.requireAuth())
		authed.GET("/mood", h.listMoods)
		authed.POST("/mood", h.submitMood)
		authed.DELETE("/users/:id", h.deleteUser)
		authed.POST("/tokens", h.issueToken)
		authed.GET("/backups", h.listBackups)
	}
}

type submitMoodRequest struct {
	Mood string `json:"mood"`
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserResponse struct {
	Username  string  `json:"username"`
	Streak    int     `json:"streak"`
	Timestamp *string `json:"timestamp"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

type BackupObjectResponse struct {
	Key          string  `json:"key"`
	Size         int64   `json:"size"`
	LastModified *string `json:"last_modified,omitempty"`
}

func (h *Handler) listMoods(c *gin.Context) {
	log, err := h.moods.Moods(currentUserID(c))
	if err != nil {
		h.moodError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"moods": log.Labels()})
}

func (h *Handler) submitMood(c *gin.Context) {
	var req submitMoodRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Mood) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "No mood entered"})
		return
	}

	label, err := h.moods.SubmitMood(c.Request.Context(), currentUserID(c), req.Mood, h.now())
	if err != nil {
		h.moodError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"mood": label})
}

func (h *Handler) moodError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, moodstore.ErrInvalidMood):
		c.JSON(http.StatusBadRequest, gin.H{"message": "No mood entered"})
	case errors.Is(err, moodstore.ErrUnknownUser):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Unknown user"})
	default:
		h.internalError(c, err)
	}
}

func (h *Handler) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Username) == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Username and password are required"})
		return
	}

	user, err := h.users.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserAlreadyExists):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Username already taken"})
		case errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"message": "Username and password are required"})
		default:
			h.internalError(c, err)
		}
		return
	}

	c.Header("Location", fmt.Sprintf("/api/users/%d", user.ID))
	c.JSON(http.StatusCreated, gin.H{"username": user.Username})
}

func (h *Handler) getUser(c *gin.Context) {
	id, ok := parseUserID(c)
	if !ok {
		return
	}

	profile, err := h.users.Profile(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Unknown user"})
			return
		}
		h.internalError(c, err)
		return
	}

	resp := UserResponse{
		Username: profile.Username,
		Streak:   profile.Streak,
	}
	if profile.LastSubmission != nil {
		v := profile.LastSubmission.Format(time.RFC3339)
		resp.Timestamp = &v
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) deleteUser(c *gin.Context) {
	id, ok := parseUserID(c)
	if !ok {
		return
	}
	if id != currentUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"message": "Users can only delete themselves"})
		return
	}

	if err := h.users.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Unknown user"})
			return
		}
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) issueToken(c *gin.Context) {
	if h.tokens == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Tokens are not enabled"})
		return
	}

	id := currentUserID(c)
	user, err := h.users.GetByID(c.Request.Context(), id)
	if err != nil {
		h.internalError(c, err)
		return
	}
	token, expires, err := h.tokens.Issue(id, user.Username)
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: expires.UTC().Format(time.RFC3339),
	})
}

func (h *Handler) listBackups(c *gin.Context) {
	if h.backups == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Backups are not configured"})
		return
	}

	objects, err := h.backups.List(c.Request.Context())
	if err != nil {
		h.internalError(c, err)
		return
	}

	resp := make([]BackupObjectResponse, len(objects))
	for i := range objects {
		resp[i] = objectToResponse(objects[i])
	}
	c.JSON(http.StatusOK, resp)
}

func objectToResponse(obj storage.ObjectInfo) BackupObjectResponse {
	resp := BackupObjectResponse{
		Key:  obj.Key,
		Size: obj.Size,
	}
	if obj.LastModified != nil && !obj.LastModified.IsZero() {
		v := obj.LastModified.Format(time.RFC3339)
		resp.LastModified = &v
	}
	return resp
}

func parseUserID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Unknown user"})
		return 0, false
	}
	return id, true
}
