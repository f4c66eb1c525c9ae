package controller

import (
	"cad_practice_backend/internal/model"
	"cad_practice_backend/internal/repository"
	"cad_practice_backend/internal/service"
	"cad_practice_backend/internal/util"
	"errors"

	"github.com/gin-gonic/gin"
)

type AdminController struct {
	QuestionService *service.QuestionService
	UserRepo        *repository.UserRepository
}

func NewAdminController(questionService *service.QuestionService, userRepo *repository.UserRepository) *AdminController {
	return &AdminController{
		QuestionService: questionService,
		UserRepo:        userRepo,
	}
}

// CreateQuestion godoc
// @Summary Create a question
// @Description Creates a challenge, fetching its reference geometry from the pinned source version
// @Tags admin
// @Accept json
// @Produce json
// @Param body body service.CreateQuestionInput true "Question definition"
// @Success 201 {object} util.Response
// @Failure 400 {object} util.Response
// @Security BearerAuth
// @Router /api/admin/questions [post]
func (c *AdminController) CreateQuestion(ctx *gin.Context) {
	var input service.CreateQuestionInput
	if err := ctx.ShouldBindJSON(&input); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	q, err := c.QuestionService.Create(ctx.Request.Context(), input)
	if err != nil {
		c.adminError(ctx, err)
		return
	}

	util.Created(ctx, gin.H{"id": q.ID, "key": q.Key()})
}

// AddStep godoc
// @Summary Add a step
// @Description Appends a step to a multi-step question
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "Question id"
// @Param body body service.CreateStepInput true "Step definition"
// @Success 201 {object} util.Response
// @Failure 400 {object} util.Response
// @Security BearerAuth
// @Router /api/admin/questions/{id}/steps [post]
func (c *AdminController) AddStep(ctx *gin.Context) {
	qid := util.MustParseUint(ctx.Param("id"))
	if qid == 0 {
		util.BadRequest(ctx, "invalid question id")
		return
	}
	var input service.CreateStepInput
	if err := ctx.ShouldBindJSON(&input); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	step, err := c.QuestionService.AddStep(ctx.Request.Context(), qid, input)
	if err != nil {
		c.adminError(ctx, err)
		return
	}

	util.Created(ctx, gin.H{"stepNumber": step.StepNumber})
}

type PublishRequest struct {
	Published bool `json:"published"`
}

// Publish godoc
// @Summary Publish or unpublish a question
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "Question id"
// @Param body body PublishRequest true "Target state"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response
// @Security BearerAuth
// @Router /api/admin/questions/{id}/publish [put]
func (c *AdminController) Publish(ctx *gin.Context) {
	qid := util.MustParseUint(ctx.Param("id"))
	if qid == 0 {
		util.BadRequest(ctx, "invalid question id")
		return
	}
	var req PublishRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	q, err := c.QuestionService.SetPublished(qid, req.Published)
	if err != nil {
		if errors.Is(err, util.ErrQuestionNotPublished) {
			util.BadRequest(ctx, "The question needs a name, a drawing and reference geometry before it can be published.")
		} else {
			c.adminError(ctx, err)
		}
		return
	}

	util.Success(ctx, gin.H{"isPublished": q.IsPublished, "isCollectingData": q.IsCollectingData})
}

type CollectingRequest struct {
	Collecting bool `json:"collecting"`
}

// SetCollecting godoc
// @Summary Toggle telemetry collection
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "Question id"
// @Param body body CollectingRequest true "Target state"
// @Success 200 {object} util.Response
// @Security BearerAuth
// @Router /api/admin/questions/{id}/collecting [put]
func (c *AdminController) SetCollecting(ctx *gin.Context) {
	qid := util.MustParseUint(ctx.Param("id"))
	if qid == 0 {
		util.BadRequest(ctx, "invalid question id")
		return
	}
	var req CollectingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	q, err := c.QuestionService.SetCollecting(qid, req.Collecting)
	if err != nil {
		c.adminError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"isCollectingData": q.IsCollectingData})
}

// DeleteQuestion godoc
// @Summary Delete an unpublished question
// @Tags admin
// @Produce json
// @Param id path int true "Question id"
// @Success 200 {object} util.Response
// @Failure 403 {object} util.Response
// @Security BearerAuth
// @Router /api/admin/questions/{id} [delete]
func (c *AdminController) DeleteQuestion(ctx *gin.Context) {
	qid := util.MustParseUint(ctx.Param("id"))
	if qid == 0 {
		util.BadRequest(ctx, "invalid question id")
		return
	}

	if err := c.QuestionService.Delete(qid); err != nil {
		if errors.Is(err, util.ErrPermissionDenied) {
			util.Error(ctx, 403, "Published questions cannot be deleted. Unpublish first.")
		} else {
			c.adminError(ctx, err)
		}
		return
	}

	util.Success(ctx, gin.H{"deleted": true})
}

// ListReviewers godoc
// @Summary List reviewers
// @Tags admin
// @Produce json
// @Success 200 {object} util.Response{data=[]model.Reviewer}
// @Security BearerAuth
// @Router /api/admin/reviewers [get]
func (c *AdminController) ListReviewers(ctx *gin.Context) {
	reviewers, err := c.UserRepo.ListReviewers()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, reviewers)
}

type ReviewerRequest struct {
	OSUserID    string `json:"osUserId" binding:"required"`
	UserName    string `json:"userName" binding:"required"`
	IsMainAdmin bool   `json:"isMainAdmin"`
	IsActive    *bool  `json:"isActive"`
}

// CreateReviewer godoc
// @Summary Add a reviewer
// @Tags admin
// @Accept json
// @Produce json
// @Param body body ReviewerRequest true "Reviewer"
// @Success 201 {object} util.Response
// @Security BearerAuth
// @Router /api/admin/reviewers [post]
func (c *AdminController) CreateReviewer(ctx *gin.Context) {
	var req ReviewerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	reviewer := &model.Reviewer{
		OSUserID:    req.OSUserID,
		UserName:    req.UserName,
		IsMainAdmin: req.IsMainAdmin,
		IsActive:    true,
	}
	if req.IsActive != nil {
		reviewer.IsActive = *req.IsActive
	}
	if err := c.UserRepo.CreateReviewer(reviewer); err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Created(ctx, gin.H{"id": reviewer.ID})
}

// UpdateReviewer godoc
// @Summary Update a reviewer
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "Reviewer id"
// @Param body body ReviewerRequest true "Reviewer"
// @Success 200 {object} util.Response
// @Security BearerAuth
// @Router /api/admin/reviewers/{id} [put]
func (c *AdminController) UpdateReviewer(ctx *gin.Context) {
	id := util.MustParseUint(ctx.Param("id"))
	if id == 0 {
		util.BadRequest(ctx, "invalid reviewer id")
		return
	}
	var req ReviewerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	reviewer, err := c.UserRepo.FindReviewer(req.OSUserID)
	if err != nil || reviewer.ID != id {
		util.NotFound(ctx)
		return
	}
	reviewer.UserName = req.UserName
	reviewer.IsMainAdmin = req.IsMainAdmin
	if req.IsActive != nil {
		reviewer.IsActive = *req.IsActive
	}
	if err := c.UserRepo.UpdateReviewer(reviewer); err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, reviewer)
}

// DeleteReviewer godoc
// @Summary Remove a reviewer
// @Tags admin
// @Produce json
// @Param id path int true "Reviewer id"
// @Success 200 {object} util.Response
// @Security BearerAuth
// @Router /api/admin/reviewers/{id} [delete]
func (c *AdminController) DeleteReviewer(ctx *gin.Context) {
	id := util.MustParseUint(ctx.Param("id"))
	if id == 0 {
		util.BadRequest(ctx, "invalid reviewer id")
		return
	}
	reviewer, err := c.UserRepo.FindReviewerByID(id)
	if err != nil {
		util.NotFound(ctx)
		return
	}
	if err := c.UserRepo.DeleteReviewer(id); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	// Revoke the unpublished-question access the roster entry granted.
	if user, uerr := c.UserRepo.FindByOSUserID(reviewer.OSUserID); uerr == nil && user.IsReviewer {
		user.IsReviewer = false
		if uerr := c.UserRepo.Update(user); uerr != nil {
			util.LogInternalError(ctx, uerr)
			return
		}
	}
	util.Success(ctx, gin.H{"deleted": true})
}

func (c *AdminController) adminError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrQuestionNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrElementTypeMismatch):
		util.BadRequest(ctx, "Steps can only be added to multi-step questions.")
	case errors.Is(err, util.ErrNoBodiesFound):
		util.BadRequest(ctx, "The reference element contains no solid bodies.")
	case errors.Is(err, util.ErrApiUnavailable):
		util.Error(ctx, 502, "The CAD service could not be reached. Please try again.")
	default:
		util.LogInternalError(ctx, err)
	}
}
