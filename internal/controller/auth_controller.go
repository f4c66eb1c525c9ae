package controller

import (
	"cad_practice_backend/internal/service"
	"cad_practice_backend/internal/util"
	"errors"

	"github.com/gin-gonic/gin"
)

type AuthController struct {
	AuthService *service.AuthService
}

func NewAuthController(authService *service.AuthService) *AuthController {
	return &AuthController{AuthService: authService}
}

// Launch godoc
// @Summary Extension launch
// @Description Entry point opened by the CAD platform inside a document. Resumes a live attempt or starts the OAuth round trip.
// @Tags auth
// @Produce json
// @Param userId query string true "CAD platform user id"
// @Param server query string false "API domain of the user's deployment"
// @Param did query string true "Document id"
// @Param wvm query string true "Context kind; must be w"
// @Param wvmid query string true "Workspace id"
// @Param eid query string true "Element id"
// @Param etype query string false "Element type"
// @Success 200 {object} util.Response{data=service.LaunchResult}
// @Failure 400 {object} util.Response
// @Router /api/auth/launch [get]
func (c *AuthController) Launch(ctx *gin.Context) {
	var params service.LaunchParams
	if err := ctx.ShouldBindQuery(&params); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.AuthService.BeginLaunch(ctx.Request.Context(), params)
	if err != nil {
		if errors.Is(err, service.ErrNotMainWorkspace) {
			util.BadRequest(ctx, "Please open the app in the main workspace of your document.")
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, result)
}

// OAuthRedirect godoc
// @Summary OAuth callback
// @Description Completes the authorization round trip and issues the app token
// @Tags auth
// @Produce json
// @Param code query string true "Authorization code"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response
// @Router /api/auth/oauth/redirect [get]
func (c *AuthController) OAuthRedirect(ctx *gin.Context) {
	code := ctx.Query("code")
	if code == "" {
		util.BadRequest(ctx, "missing authorization code")
		return
	}

	token, user, err := c.AuthService.CompleteOAuth(ctx.Request.Context(), code)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrApiUnavailable):
			util.Error(ctx, 502, "The CAD service could not be reached. Please try again.")
		case errors.Is(err, util.ErrUserNotFound):
			util.BadRequest(ctx, "Please launch the app from within a document first.")
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, gin.H{
		"token":      token,
		"osUserId":   user.OSUserID,
		"isReviewer": user.IsReviewer,
	})
}

type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AdminLogin godoc
// @Summary Admin login
// @Description Password login for the management console
// @Tags auth
// @Accept json
// @Produce json
// @Param body body AdminLoginRequest true "Credentials"
// @Success 200 {object} util.Response
// @Failure 401 {object} util.Response
// @Router /api/auth/admin/login [post]
func (c *AuthController) AdminLogin(ctx *gin.Context) {
	var req AdminLoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	token, err := c.AuthService.AdminLogin(req.Username, req.Password)
	if err != nil {
		util.Error(ctx, 401, "Invalid username or password")
		return
	}

	util.Success(ctx, gin.H{"token": token})
}

type ChangePasswordRequest struct {
	Username    string `json:"username" binding:"required"`
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=12"`
}

// ChangeAdminPassword godoc
// @Summary Change admin password
// @Tags auth
// @Accept json
// @Produce json
// @Param body body ChangePasswordRequest true "Password change"
// @Success 200 {object} util.Response
// @Failure 401 {object} util.Response
// @Router /api/auth/admin/password [post]
func (c *AuthController) ChangeAdminPassword(ctx *gin.Context) {
	var req ChangePasswordRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.AuthService.ChangeAdminPassword(req.Username, req.OldPassword, req.NewPassword); err != nil {
		if errors.Is(err, util.ErrInvalidCredentials) {
			util.Error(ctx, 401, "Invalid username or password")
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, gin.H{"changed": true})
}
