package handlers

import (
	"context"
	"net/http"

	"github.com/anonto42/nano-feed/backend/internal/models"
	"github.com/labstack/echo/v4"
)

// AuthService is the account side of the feed coordinator.
type AuthService interface {
	Signup(ctx context.Context, req models.SignupRequest) (*models.User, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error)
	LoginWithFirebase(ctx context.Context, idToken string) (*models.LoginResult, error)
	FirebaseEnabled() bool
	GetUserStatus(ctx context.Context, credential string) (string, error)
	UpdateStatus(ctx context.Context, credential, status string) (string, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	auth AuthService
}

func NewAuthHandler(auth AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// RegisterAuthRoutes registers authentication-related routes. Firebase login is only
// mounted when it is configured.
func (h *AuthHandler) RegisterAuthRoutes(g *echo.Group) {
	g.PUT("/signup", h.Signup)
	g.POST("/login", h.Login)
	g.GET("/status", h.GetStatus)
	g.PATCH("/status", h.UpdateStatus)
	if h.auth.FirebaseEnabled() {
		g.POST("/firebase-login", h.FirebaseLogin)
	}
}

func (h *AuthHandler) Signup(c echo.Context) error {
	var req models.SignupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}

	user, err := h.auth.Signup(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "User created!",
		"userId":  user.ID,
	})
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req models.LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}

	res, err := h.auth.Login(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, res)
}

// FirebaseLogin exchanges a Firebase ID token for a local credential.
func (h *AuthHandler) FirebaseLogin(c echo.Context) error {
	var req models.FirebaseLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}

	res, err := h.auth.LoginWithFirebase(c.Request().Context(), req.IDToken)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, res)
}

func (h *AuthHandler) GetStatus(c echo.Context) error {
	status, err := h.auth.GetUserStatus(c.Request().Context(), credential(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "User status found!",
		"status":  status,
	})
}

func (h *AuthHandler) UpdateStatus(c echo.Context) error {
	var req models.UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}

	status, err := h.auth.UpdateStatus(c.Request().Context(), credential(c), req.Status)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "User status updated!",
		"status":  status,
	})
}

func credential(c echo.Context) string {
	return c.Request().Header.Get(echo.HeaderAuthorization)
}
