package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"voxassist/internal/auth"
	"voxassist/internal/models"
	"voxassist/internal/service/assistant"
	"voxassist/internal/worker"
)

// WorkerManager is the command-execution boundary consumed by handlers.
type WorkerManager interface {
	Ask(worker.AskRequest) (models.Intent, error)
	ResetUser(userID int64)
}

// Handler wires HTTP routes to the assistant service and the per-user
// command workers.
type Handler struct {
	assistant *assistant.Service
	auth      *auth.Service
	workers   WorkerManager
	fileBase  string
}

// NewHandler constructs a Handler instance.
func NewHandler(service *assistant.Service, authService *auth.Service, workers WorkerManager, fileBase string) *Handler {
	return &Handler{
		assistant: service,
		auth:      authService,
		workers:   workers,
		fileBase:  fileBase,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	authRoutes := api.Group("/auth")
	authRoutes.POST("/signup", h.signup)
	authRoutes.POST("/login", h.login)
	authRoutes.GET("/logout", h.logout)

	userRoutes := api.Group("/user")
	userRoutes.Use(h.auth.Middleware(), h.auth.CSRFMiddleware())
	userRoutes.GET("/current", h.currentUser)
	userRoutes.POST("/update", h.updateAssistant)
	userRoutes.POST("/asktoassistant", h.askToAssistant)

	if h.fileBase != "" {
		router.Static("/uploads", h.fileBase)
	}
}

type signupRequest struct {
	UserName string `json:"userName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.assistant.RegisterUser(c.Request.Context(), req.UserName, req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.issueSession(c, user.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         user.ID,
		"user_name":  user.UserName,
		"email":      user.Email,
		"created_at": user.CreatedAt,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	user, err := h.assistant.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if err := h.issueSession(c, user.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":              user.ID,
		"user_name":       user.UserName,
		"email":           user.Email,
		"assistant_name":  user.AssistantName,
		"assistant_image": user.AssistantImage,
		"created_at":      user.CreatedAt,
	})
}

// logout ends every session for the user behind the presented cookie,
// stops their command worker and clears the browser cookies. An invalid
// or expired cookie still gets its row removed and the cookies cleared.
func (h *Handler) logout(c *gin.Context) {
	if token, err := c.Cookie(h.auth.AuthCookieName()); err == nil && token != "" {
		if userID, err := h.auth.ValidateToken(c.Request.Context(), token); err == nil {
			h.workers.ResetUser(userID)
			_ = h.auth.RevokeUserTokens(c.Request.Context(), userID)
		} else {
			_ = h.auth.RevokeToken(c.Request.Context(), token)
		}
	}
	h.clearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"message": "logout successful"})
}

func (h *Handler) currentUser(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	user, err := h.assistant.GetUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	history, err := h.assistant.GetHistory(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":    user,
		"history": history,
	})
}

func (h *Handler) updateAssistant(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}

	var assistantName, assistantImage string
	contentType := c.GetHeader("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		assistantName = strings.TrimSpace(c.PostForm("assistantName"))
		file, err := c.FormFile("assistantImage")
		if err != nil {
			// No file part; a direct URL may still be supplied.
			assistantImage = strings.TrimSpace(c.PostForm("imageUrl"))
		} else {
			assistantImage, err = h.storeAvatar(c, userID, file)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
	} else {
		var req struct {
			AssistantName string `json:"assistantName"`
			ImageURL      string `json:"imageUrl"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		assistantName = strings.TrimSpace(req.AssistantName)
		assistantImage = strings.TrimSpace(req.ImageURL)
	}

	user, err := h.assistant.UpdateAssistant(c.Request.Context(), userID, assistantName, assistantImage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, user)
}

type askRequest struct {
	Command string `json:"command"`
}

// askToAssistant runs one command through the interpret -> normalize ->
// dispatch pipeline. Every oracle or parsing failure still produces a
// valid intent document, so the only non-200 outcomes are auth, missing
// user, history validation and a saturated worker queue.
func (h *Handler) askToAssistant(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	command := strings.TrimSpace(req.Command)
	if command == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command is required"})
		return
	}

	intent, err := h.workers.Ask(worker.AskRequest{
		Context: c.Request.Context(),
		UserID:  userID,
		Command: command,
	})
	if err != nil {
		switch {
		case errors.Is(err, worker.ErrBusy):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "assistant is busy, please retry"})
		case errors.Is(err, assistant.ErrHistoryValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, sql.ErrNoRows):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (h *Handler) authorizedUserID(c *gin.Context) (int64, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok || userID <= 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return 0, false
	}
	return userID, true
}

func (h *Handler) issueSession(c *gin.Context, userID int64) error {
	authToken, err := h.auth.IssueToken(c.Request.Context(), userID)
	if err != nil {
		return err
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		return err
	}
	h.setAuthCookies(c, authToken, csrfToken)
	return nil
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}
