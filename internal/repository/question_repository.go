package repository

import (
	"cad_practice_backend/internal/model"

	"gorm.io/gorm"
)

type QuestionRepository struct {
	DB *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: db}
}

func (r *QuestionRepository) Create(question *model.Question) error {
	return r.DB.Create(question).Error
}

func (r *QuestionRepository) FindByID(id uint) (*model.Question, error) {
	var question model.Question
	err := r.DB.First(&question, id).Error
	return &question, err
}

func (r *QuestionRepository) FindByTypeAndID(qType model.QuestionType, id uint) (*model.Question, error) {
	var question model.Question
	err := r.DB.Where("question_type = ? AND id = ?", qType, id).First(&question).Error
	return &question, err
}

func (r *QuestionRepository) Update(question *model.Question) error {
	return r.DB.Save(question).Error
}

func (r *QuestionRepository) Delete(id uint) error {
	return r.DB.Delete(&model.Question{}, id).Error
}

// ListPublished returns the catalogue visible to regular users, optionally
// narrowed to element types compatible with the open element.
func (r *QuestionRepository) ListPublished(etype model.ElementType) ([]model.Question, error) {
	var questions []model.Question
	query := r.DB.Where("is_published = ?", true)
	if etype != model.ElementTypeAll && etype != "" {
		query = query.Where("allowed_elem_type IN ?", []model.ElementType{etype, model.ElementTypeAll})
	}
	err := query.Order("difficulty, id").Find(&questions).Error
	return questions, err
}

// ListAll returns every question including unpublished ones, for reviewers
// and admins.
func (r *QuestionRepository) ListAll() ([]model.Question, error) {
	var questions []model.Question
	err := r.DB.Order("question_type, id").Find(&questions).Error
	return questions, err
}

// Question steps

func (r *QuestionRepository) CreateStep(step *model.QuestionStep) error {
	return r.DB.Create(step).Error
}

func (r *QuestionRepository) FindStep(questionID uint, stepNumber int) (*model.QuestionStep, error) {
	var step model.QuestionStep
	err := r.DB.Where("question_id = ? AND step_number = ?", questionID, stepNumber).First(&step).Error
	return &step, err
}

func (r *QuestionRepository) ListSteps(questionID uint) ([]model.QuestionStep, error) {
	var steps []model.QuestionStep
	err := r.DB.Where("question_id = ?", questionID).Order("step_number").Find(&steps).Error
	return steps, err
}

func (r *QuestionRepository) CountSteps(questionID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.QuestionStep{}).Where("question_id = ?", questionID).Count(&count).Error
	return count, err
}
