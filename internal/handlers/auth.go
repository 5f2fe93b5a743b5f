package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/neuralninja/authd/internal/middleware"
	"github.com/neuralninja/authd/internal/models"
	"github.com/neuralninja/authd/internal/services"
	"github.com/neuralninja/authd/pkg/errors"
	"github.com/neuralninja/authd/pkg/response"
)

// AuthHandler manages the account flows: signup, signin, code
// verification, resend, whoami and logout.
type AuthHandler struct {
	auth *services.AuthService
}

func NewAuthHandler(auth *services.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type signupRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type signinRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type verifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

type resendOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type userPayload struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Verified bool   `json:"verified"`
}

func newUserPayload(user *models.User) userPayload {
	return userPayload{
		ID:       user.ID,
		Email:    user.Email,
		Name:     user.DisplayName,
		Verified: user.Verified,
	}
}

// POST /api/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.auth.Signup(requestContext(c), services.SignupInput{
		DisplayName: req.Name,
		Email:       req.Email,
		Password:    req.Password,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := gin.H{
		"message": "Account created. Check your email for a verification code.",
		"user":    newUserPayload(result.User),
	}
	if result.Code != "" {
		payload["otp"] = result.Code
	}
	response.Success(c, http.StatusCreated, payload)
}

// POST /api/signin
func (h *AuthHandler) Signin(c *gin.Context) {
	var req signinRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.auth.Signin(requestContext(c), req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	if result.RequiresOTP {
		payload := gin.H{
			"requires_otp": true,
			"message":      "Account not verified. A new verification code has been sent to your email.",
		}
		if result.Code != "" {
			payload["otp"] = result.Code
		}
		response.Success(c, http.StatusOK, payload)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"access_token": result.Token,
		"token_type":   "bearer",
		"user":         newUserPayload(result.User),
	})
}

// POST /api/verify-otp
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.auth.VerifyOTP(requestContext(c), req.Email, req.OTP)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message":      "Email verified.",
		"access_token": result.Token,
		"token_type":   "bearer",
		"user":         newUserPayload(result.User),
	})
}

// POST /api/resend-otp
func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var req resendOTPRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.auth.ResendOTP(requestContext(c), req.Email)
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := gin.H{"message": "A new verification code has been sent to your email."}
	if result.Code != "" {
		payload["otp"] = result.Code
	}
	response.Success(c, http.StatusOK, payload)
}

// GET /api/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthenticated)
		return
	}

	user, err := h.auth.WhoAmI(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, newUserPayload(user))
}

// POST /api/logout
//
// Tokens are stateless and not revoked server side; clients discard
// their copy. The endpoint exists so clients have a uniform call.
func (h *AuthHandler) Logout(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"message": "Signed out."})
}
