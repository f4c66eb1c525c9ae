package controller

import (
	"cad_practice_backend/internal/model"
	"cad_practice_backend/internal/service"
	"cad_practice_backend/internal/util"
	"errors"

	"github.com/gin-gonic/gin"
)

type AttemptController struct {
	AttemptService *service.AttemptService
}

func NewAttemptController(attemptService *service.AttemptService) *AttemptController {
	return &AttemptController{AttemptService: attemptService}
}

// Initiate godoc
// @Summary Start an attempt
// @Description Starts the selected question in the user's workspace; the workspace must be empty
// @Tags attempt
// @Produce json
// @Param type path string true "Question type" Enums(SPPS, MPPS, ASMB, MSPS)
// @Param id path int true "Question id"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response
// @Failure 409 {object} util.Response "Workspace not empty"
// @Security BearerAuth
// @Router /api/attempts/{type}/{id}/initiate [post]
func (c *AttemptController) Initiate(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	qid := util.MustParseUint(ctx.Param("id"))
	if qid == 0 {
		util.BadRequest(ctx, "invalid question id")
		return
	}

	q, err := c.AttemptService.Initiate(ctx.Request.Context(), claims.UserID, model.QuestionType(ctx.Param("type")), qid)
	if err != nil {
		c.attemptError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{
		"question":     q.Key(),
		"name":         q.Name,
		"totalSteps":   q.TotalSteps,
		"instructions": q.AdditionalInstructions,
	})
}

// Evaluate godoc
// @Summary Submit the current model
// @Description Judges the user's model against the reference geometry
// @Tags attempt
// @Produce json
// @Success 200 {object} util.Response{data=service.EvaluateResult}
// @Failure 400 {object} util.Response
// @Security BearerAuth
// @Router /api/attempts/evaluate [post]
func (c *AttemptController) Evaluate(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	result, err := c.AttemptService.Evaluate(ctx.Request.Context(), claims.UserID)
	if err != nil {
		c.attemptError(ctx, err)
		return
	}

	util.Success(ctx, result)
}

// GiveUp godoc
// @Summary Abandon the attempt
// @Description Abandons the live attempt and exposes the reference solution
// @Tags attempt
// @Produce json
// @Success 200 {object} util.Response{data=service.GiveUpResult}
// @Failure 400 {object} util.Response
// @Security BearerAuth
// @Router /api/attempts/give-up [post]
func (c *AttemptController) GiveUp(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	result, err := c.AttemptService.GiveUp(ctx.Request.Context(), claims.UserID)
	if err != nil {
		c.attemptError(ctx, err)
		return
	}

	util.Success(ctx, result)
}

// Summary godoc
// @Summary Completion summary
// @Description Shows the user's latest completion of their current question, or their best one
// @Tags attempt
// @Produce json
// @Param best query bool false "Show the user's fastest historical completion instead of the latest"
// @Success 200 {object} util.Response{data=service.AttemptSummary}
// @Failure 404 {object} util.Response
// @Security BearerAuth
// @Router /api/attempts/summary [get]
func (c *AttemptController) Summary(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	summary, err := c.AttemptService.Summarize(claims.UserID, ctx.Query("best") == "true")
	if err != nil {
		c.attemptError(ctx, err)
		return
	}

	util.Success(ctx, summary)
}

func (c *AttemptController) attemptError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrUserNotFound):
		util.Unauthorized(ctx)
	case errors.Is(err, util.ErrQuestionNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrQuestionNotPublished):
		util.Error(ctx, 403, "This question is not published yet.")
	case errors.Is(err, util.ErrElementTypeMismatch):
		util.BadRequest(ctx, "This question cannot be started from your current element type.")
	case errors.Is(err, util.ErrWorkspaceNotEmpty):
		util.Error(ctx, 409, "Please start from an empty element. Your workspace already contains geometry.")
	case errors.Is(err, util.ErrNoActiveAttempt):
		util.BadRequest(ctx, "You have no attempt in progress. Please start a question first.")
	case errors.Is(err, util.ErrApiUnavailable):
		util.Error(ctx, 502, "The CAD service could not be reached. Please try again.")
	default:
		util.LogInternalError(ctx, err)
	}
}
