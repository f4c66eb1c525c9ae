package controller

import (
	"cad_practice_backend/internal/model"
	"cad_practice_backend/internal/repository"
	"cad_practice_backend/internal/service"
	"cad_practice_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type QuestionController struct {
	QuestionService *service.QuestionService
	UserRepo        *repository.UserRepository
}

func NewQuestionController(questionService *service.QuestionService, userRepo *repository.UserRepository) *QuestionController {
	return &QuestionController{
		QuestionService: questionService,
		UserRepo:        userRepo,
	}
}

// List godoc
// @Summary Question catalogue
// @Description Lists the questions the user can start from their current element
// @Tags question
// @Produce json
// @Success 200 {object} util.Response{data=[]service.CatalogueEntry}
// @Security BearerAuth
// @Router /api/questions [get]
func (c *QuestionController) List(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	user, err := c.UserRepo.FindByID(claims.UserID)
	if err != nil {
		util.Unauthorized(ctx)
		return
	}

	entries, err := c.QuestionService.Catalogue(user)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, entries)
}

// Get godoc
// @Summary Question detail
// @Tags question
// @Produce json
// @Param type path string true "Question type" Enums(SPPS, MPPS, ASMB, MSPS)
// @Param id path int true "Question id"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Security BearerAuth
// @Router /api/questions/{type}/{id} [get]
func (c *QuestionController) Get(ctx *gin.Context) {
	qid := util.MustParseUint(ctx.Param("id"))
	if qid == 0 {
		util.BadRequest(ctx, "invalid question id")
		return
	}

	q, steps, err := c.QuestionService.Get(model.QuestionType(ctx.Param("type")), qid)
	if err != nil {
		util.NotFound(ctx)
		return
	}

	util.Success(ctx, gin.H{
		"question": q,
		"steps":    steps,
	})
}
