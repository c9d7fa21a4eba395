package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"mood-tracker/internal/service"
)

const (
	ctxUserID    = "user_id"
	ctxRequestID = "request_id"

	requestIDHeader = "X-Request-ID"
)

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Location, "+requestIDHeader)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger tags every request with an id and logs one line when it completes.
func requestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(ctxRequestID, reqID)
		c.Writer.Header().Set(requestIDHeader, reqID)

		start := time.Now()
		c.Next()

		fields := logrus.Fields{
			"request_id": reqID,
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency":    time.Since(start),
		}
		if id, ok := c.Get(ctxUserID); ok {
			fields["user_id"] = id
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}
		entry := logger.WithFields(fields)
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("request failed")
		default:
			entry.Info("request")
		}
	}
}

// requireAuth accepts HTTP Basic credentials, or a bearer token when tokens are enabled.
func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")

		if token, ok := strings.CutPrefix(header, "Bearer "); ok && h.tokens != nil {
			id, err := h.tokens.Verify(strings.TrimSpace(token))
			if err != nil {
				h.unauthorized(c)
				return
			}
			if _, err := h.users.GetByID(c.Request.Context(), id); err != nil {
				if errors.Is(err, service.ErrUserNotFound) {
					h.unauthorized(c)
					return
				}
				h.internalError(c, err)
				return
			}
			c.Set(ctxUserID, id)
			c.Next()
			return
		}

		username, password, ok := c.Request.BasicAuth()
		if !ok {
			h.unauthorized(c)
			return
		}
		user, err := h.users.Authenticate(c.Request.Context(), username, password)
		if err != nil {
			if errors.Is(err, service.ErrInvalidCredentials) {
				h.unauthorized(c)
				return
			}
			h.internalError(c, err)
			return
		}
		c.Set(ctxUserID, user.ID)
		c.Next()
	}
}

func (h *Handler) unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", `Basic realm="mood"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized access"})
}

func (h *Handler) internalError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
}

func currentUserID(c *gin.Context) int64 {
	return c.GetInt64(ctxUserID)
}
