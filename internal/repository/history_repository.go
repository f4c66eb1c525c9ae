package repository

import (
	"cad_practice_backend/internal/model"

	"gorm.io/gorm"
)

type HistoryRepository struct {
	DB *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{DB: db}
}

func (r *HistoryRepository) CreateCompletion(record *model.CompletionRecord) error {
	return r.DB.Create(record).Error
}

func (r *HistoryRepository) CreateFailure(record *model.FailureRecord) error {
	return r.DB.Create(record).Error
}

// ListCompletions returns a user's completions of one question, oldest
// first.
func (r *HistoryRepository) ListCompletions(userID uint, questionKey string) ([]model.CompletionRecord, error) {
	var records []model.CompletionRecord
	err := r.DB.Where("user_id = ? AND question_key = ?", userID, questionKey).
		Order("completed_at").
		Find(&records).Error
	return records, err
}

