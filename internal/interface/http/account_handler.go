package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	accountapp "account-service/internal/application"
	"account-service/internal/interface/middleware"
	"account-service/pkg/response"
	"account-service/pkg/validation"
)

type AccountHandler struct {
	Svc    *accountapp.Service
	Logger *logrus.Logger
}

func NewAccountHandler(svc *accountapp.Service, logger *logrus.Logger) *AccountHandler {
	return &AccountHandler{Svc: svc, Logger: logger}
}

type registerRequest struct {
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required,pwd"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
	FirstName       string `json:"first_name" binding:"required"`
	LastName        string `json:"last_name" binding:"required"`
	Phone           string `json:"phone"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type updateProfileRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email" binding:"omitempty,email"`
	Phone     string `json:"phone"`
}

func (h *AccountHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	res, err := h.Svc.Register(c.Request.Context(), accountapp.RegisterInput{
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Phone:           req.Phone,
	})
	if err != nil {
		switch {
		case errors.Is(err, accountapp.ErrPasswordMismatch):
			response.Error[any](c, http.StatusBadRequest, "passwords do not match", nil)
		case errors.Is(err, accountapp.ErrDuplicateEmail):
			response.Error[any](c, http.StatusBadRequest, "email already registered", nil)
		default:
			h.Logger.WithError(err).Error("register failed")
			response.Error[any](c, http.StatusInternalServerError, "server error", nil)
		}
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"token":   res.Token,
		"account": res.Account,
	}, "account created", map[string]any{"token_expires_at": res.TokenExpiry})
}

func (h *AccountHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}

	res, err := h.Svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, accountapp.ErrInvalidCredentials) {
			response.Error[any](c, http.StatusUnauthorized, "invalid credentials", nil)
			return
		}
		h.Logger.WithError(err).Error("login failed")
		response.Error[any](c, http.StatusInternalServerError, "server error", nil)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token":   res.Token,
		"account": res.Account,
	}, "login successful", map[string]any{"token_expires_at": res.TokenExpiry})
}

func (h *AccountHandler) GetMe(c *gin.Context) {
	uid := c.GetString(middleware.CtxUserIDKey)
	v, err := h.Svc.GetProfile(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, accountapp.ErrAccountNotFound) {
			response.Error[any](c, http.StatusNotFound, "account not found", nil)
			return
		}
		h.Logger.WithError(err).Error("get profile failed")
		response.Error[any](c, http.StatusInternalServerError, "server error", nil)
		return
	}
	response.Success(c, http.StatusOK, v, "profile", nil)
}

func (h *AccountHandler) UpdateMe(c *gin.Context) {
	uid := c.GetString(middleware.CtxUserIDKey)
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	v, err := h.Svc.UpdateProfile(c.Request.Context(), uid, accountapp.UpdateProfileInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
	})
	if err != nil {
		switch {
		case errors.Is(err, accountapp.ErrAccountNotFound):
			response.Error[any](c, http.StatusNotFound, "account not found", nil)
		case errors.Is(err, accountapp.ErrDuplicateEmail):
			response.Error[any](c, http.StatusBadRequest, "email already registered", nil)
		default:
			h.Logger.WithError(err).Error("update profile failed")
			response.Error[any](c, http.StatusInternalServerError, "server error", nil)
		}
		return
	}
	response.Success(c, http.StatusOK, v, "profile updated", nil)
}

func (h *AccountHandler) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		response.Error[any](c, http.StatusBadRequest, "missing query", nil)
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))
	hits, err := h.Svc.SearchAccounts(c.Request.Context(), q, size)
	if err != nil {
		h.Logger.WithError(err).Error("account search failed")
		response.Error[any](c, http.StatusInternalServerError, "server error", nil)
		return
	}
	response.Success(c, http.StatusOK, hits, "search results", map[string]any{"count": len(hits)})
}
