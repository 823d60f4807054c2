package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	userapp "github.com/cadot-io/user-api/internal/application"
	"github.com/cadot-io/user-api/internal/apperrors"
	"github.com/cadot-io/user-api/internal/domain/entity"
	"github.com/cadot-io/user-api/internal/interface/middleware"
	"github.com/cadot-io/user-api/pkg/response"
	"github.com/cadot-io/user-api/pkg/validation"
)

type UserHandler struct {
	Svc    *userapp.Service
	Logger *logrus.Logger
}

func NewUserHandler(svc *userapp.Service, logger *logrus.Logger) *UserHandler {
	return &UserHandler{Svc: svc, Logger: logger}
}

type registerRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Username    string `json:"username" binding:"required,uname"`
	Password    string `json:"password" binding:"required,pwd"`
	FullName    string `json:"full_name" binding:"omitempty,max=100"`
	PhoneNumber string `json:"phone_number" binding:"omitempty,max=20"`
	AvatarURL   string `json:"avatar_url" binding:"omitempty,url"`
}

type loginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

type updateProfileRequest struct {
	Email       string `json:"email" binding:"omitempty,email"`
	Username    string `json:"username" binding:"omitempty,uname"`
	FullName    string `json:"full_name" binding:"omitempty,max=100"`
	PhoneNumber string `json:"phone_number" binding:"omitempty,max=20"`
	AvatarURL   string `json:"avatar_url" binding:"omitempty,url"`
}

type updatePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required,pwd"`
	NewPassword string `json:"new_password" binding:"required,pwd"`
}

type setStatusRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

type loginResponse struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresAt   time.Time     `json:"expires_at"`
	User        entity.Public `json:"user"`
}

// Register handles POST /users/ (public).
func (h *UserHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FailValidation(c, validation.ToDetails(err))
		return
	}
	u, err := h.Svc.Register(c.Request.Context(), userapp.RegisterInput{
		Email:       req.Email,
		Username:    req.Username,
		Password:    req.Password,
		FullName:    req.FullName,
		PhoneNumber: req.PhoneNumber,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, u.ToPublic(), "user created", nil)
}

// Login handles POST /login (public, JSON body).
func (h *UserHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FailValidation(c, validation.ToDetails(err))
		return
	}
	h.login(c, req.Identifier, req.Password)
}

// LoginAccessToken handles POST /login/access-token (public). The body is
// an OAuth2-style form with username/password fields; username accepts
// email or username.
func (h *UserHandler) LoginAccessToken(c *gin.Context) {
	identifier := c.PostForm("username")
	password := c.PostForm("password")
	if identifier == "" || password == "" {
		response.FailValidation(c, map[string]string{
			"username": "is required",
			"password": "is required",
		})
		return
	}
	h.login(c, identifier, password)
}

func (h *UserHandler) login(c *gin.Context, identifier, password string) {
	res, err := h.Svc.Login(c.Request.Context(), identifier, password)
	if err != nil {
		h.Logger.WithFields(logrus.Fields{
			"identifier": identifier,
			"ip":         middleware.ClientIP(c),
			"kind":       apperrors.KindOf(err),
		}).Warn("login failed")
		c.Header("WWW-Authenticate", "Bearer")
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, loginResponse{
		AccessToken: res.AccessToken,
		TokenType:   res.TokenType,
		ExpiresAt:   res.ExpiresAt,
		User:        res.User.ToPublic(),
	}, "login successful", nil)
}

// Me handles GET /users/me.
func (h *UserHandler) Me(c *gin.Context) {
	u := middleware.CurrentUser(c)
	response.Success(c, http.StatusOK, u.ToPublic(), "profile", nil)
}

// UpdateMe handles PUT /users/me. The payload cannot carry is_active or
// is_superuser; unknown fields are ignored by the binding.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	u := middleware.CurrentUser(c)
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FailValidation(c, validation.ToDetails(err))
		return
	}
	updated, err := h.Svc.UpdateProfile(c.Request.Context(), u.ID, userapp.UpdateProfileInput{
		Email:       req.Email,
		Username:    req.Username,
		FullName:    req.FullName,
		PhoneNumber: req.PhoneNumber,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, updated.ToPublic(), "profile updated", nil)
}

// UpdatePassword handles PUT /users/me/password.
func (h *UserHandler) UpdatePassword(c *gin.Context) {
	u := middleware.CurrentUser(c)
	var req updatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FailValidation(c, validation.ToDetails(err))
		return
	}
	updated, err := h.Svc.UpdatePassword(c.Request.Context(), u.ID, req.OldPassword, req.NewPassword)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, updated.ToPublic(), "password updated", nil)
}

// UploadAvatar handles POST /users/me/avatar (multipart form, field "file").
func (h *UserHandler) UploadAvatar(c *gin.Context) {
	u := middleware.CurrentUser(c)
	fh, err := c.FormFile("file")
	if err != nil {
		response.FailValidation(c, map[string]string{"file": "is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.Fail(c, err)
		return
	}
	defer func() { _ = f.Close() }()

	updated, err := h.Svc.UploadAvatar(c.Request.Context(), u.ID, f, fh.Filename, fh.Header.Get("Content-Type"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, updated.ToPublic(), "avatar uploaded", nil)
}

// GetByID handles GET /users/:id (authenticated).
func (h *UserHandler) GetByID(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.FailValidation(c, map[string]string{"id": "must be an integer"})
		return
	}
	u, err := h.Svc.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, u.ToPublic(), "user", nil)
}

// List handles GET /users/ (superuser). Pagination via page/per_page.
func (h *UserHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	page, perPage = userapp.NormalizePage(page, perPage)

	users, total, err := h.Svc.ListPage(c.Request.Context(), page, perPage)
	if err != nil {
		response.Fail(c, err)
		return
	}
	out := make([]entity.Public, 0, len(users))
	for _, u := range users {
		out = append(out, u.ToPublic())
	}
	response.Success(c, http.StatusOK, out, "users", gin.H{
		"page":     page,
		"per_page": perPage,
		"total":    total,
	})
}

// Search handles GET /users/search (superuser), backed by Elasticsearch.
func (h *UserHandler) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		response.FailValidation(c, map[string]string{"q": "is required"})
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))
	hits, err := h.Svc.SearchUsers(c.Request.Context(), q, size)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, hits, "search results", gin.H{"count": len(hits)})
}

// SetStatus handles PATCH /users/:id/status (superuser).
func (h *UserHandler) SetStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.FailValidation(c, map[string]string{"id": "must be an integer"})
		return
	}
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FailValidation(c, validation.ToDetails(err))
		return
	}
	u, err := h.Svc.SetActive(c.Request.Context(), id, *req.IsActive)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, u.ToPublic(), "activation flag updated", nil)
}
