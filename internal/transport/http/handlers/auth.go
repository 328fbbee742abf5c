package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/octopis-auth/internal/core/domain"
	"github.com/arklim/octopis-auth/internal/transport/http/middleware"
	"github.com/arklim/octopis-auth/internal/usecase"
)

// AuthService is the slice of usecase.AuthService the handlers call.
type AuthService interface {
	Register(ctx context.Context, in usecase.RegisterInput) (*domain.User, error)
	Login(ctx context.Context, in usecase.LoginInput) (domain.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, accessToken string) (*domain.User, error)
}

var (
	registerErrors = []ErrorCase{
		{Err: usecase.ErrEmailTaken, Status: http.StatusBadRequest, Message: "Email already registered"},
	}
	loginErrors = []ErrorCase{
		{Err: usecase.ErrInvalidCredential, Status: http.StatusUnauthorized, Message: "Invalid credentials"},
	}
	tokenErrors = []ErrorCase{
		{Err: usecase.ErrInvalidCredential, Status: http.StatusUnauthorized, Message: "Could not validate credentials"},
		{Err: usecase.ErrPrincipalNotFound, Status: http.StatusUnauthorized, Message: "Could not validate credentials"},
	}
)

// AuthHandler serves the /auth routes.
type AuthHandler struct {
	auth AuthService
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(auth AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// RegisterRoutes mounts the auth endpoints on rg.
func (h *AuthHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/register", h.Register)
	rg.POST("/login", h.Login)
	rg.POST("/refresh", h.Refresh)
	rg.POST("/logout", h.Logout)
	rg.GET("/me", middleware.RequireBearer(), h.Me)
}

// Register creates an account and returns its public view.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.auth.Register(c.Request.Context(), usecase.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
	})
	if err != nil {
		RespondWithMappedError(c, err, registerErrors)
		return
	}

	c.JSON(http.StatusOK, newUserResponse(user))
}

// Login exchanges credentials for an access and refresh token pair.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	pair, err := h.auth.Login(c.Request.Context(), usecase.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		ClientIP: middleware.ClientKey(c.Request),
	})
	if err != nil {
		RespondWithMappedError(c, err, loginErrors)
		return
	}

	c.JSON(http.StatusOK, newTokenResponse(pair))
}

// Refresh issues a new access token. The refresh token is returned unchanged.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if !bindJSON(c, &req) {
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		RespondWithMappedError(c, err, tokenErrors)
		return
	}

	c.JSON(http.StatusOK, newTokenResponse(pair))
}

// Logout revokes the supplied refresh token.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req RefreshRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		RespondWithMappedError(c, err, tokenErrors)
		return
	}

	c.Status(http.StatusNoContent)
}

// Me returns the principal behind the bearer access token.
func (h *AuthHandler) Me(c *gin.Context) {
	token, ok := middleware.GetBearerToken(c)
	if !ok {
		RespondWithMappedError(c, usecase.ErrInvalidCredential, tokenErrors)
		return
	}

	user, err := h.auth.Me(c.Request.Context(), token)
	if err != nil {
		RespondWithMappedError(c, err, tokenErrors)
		return
	}

	c.JSON(http.StatusOK, newUserResponse(user))
}
