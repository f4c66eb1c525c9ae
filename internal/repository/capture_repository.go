package repository

import (
	"cad_practice_backend/internal/model"

	"gorm.io/gorm"
)

type CaptureRepository struct {
	DB *gorm.DB
}

func NewCaptureRepository(db *gorm.DB) *CaptureRepository {
	return &CaptureRepository{DB: db}
}

func (r *CaptureRepository) Create(record *model.CaptureRecord) error {
	return r.DB.Create(record).Error
}

// FindOpen returns the user's most recent capture of a question that has
// not been finalized yet, so follow-up jobs can extend it.
func (r *CaptureRepository) FindOpen(osUserID string, questionID uint) (*model.CaptureRecord, error) {
	var record model.CaptureRecord
	err := r.DB.Where("os_user_id = ? AND question_id = ? AND completion_time IS NULL", osUserID, questionID).
		Order("id DESC").
		First(&record).Error
	return &record, err
}

func (r *CaptureRepository) Update(record *model.CaptureRecord) error {
	return r.DB.Save(record).Error
}

// CountAttempts counts a user's prior captures for a question, used to
// number successive attempts.
func (r *CaptureRepository) CountAttempts(osUserID string, questionID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.CaptureRecord{}).
		Where("os_user_id = ? AND question_id = ?", osUserID, questionID).
		Count(&count).Error
	return count, err
}

// Part studio payloads

func (r *CaptureRepository) FindPartStudio(captureID uint) (*model.CapturePartStudio, error) {
	var payload model.CapturePartStudio
	err := r.DB.Where("capture_id = ?", captureID).First(&payload).Error
	return &payload, err
}

func (r *CaptureRepository) SavePartStudio(payload *model.CapturePartStudio) error {
	return r.DB.Save(payload).Error
}

// Assembly payloads

func (r *CaptureRepository) FindAssembly(captureID uint) (*model.CaptureAssembly, error) {
	var payload model.CaptureAssembly
	err := r.DB.Where("capture_id = ?", captureID).First(&payload).Error
	return &payload, err
}

func (r *CaptureRepository) SaveAssembly(payload *model.CaptureAssembly) error {
	return r.DB.Save(payload).Error
}

// Step payloads

func (r *CaptureRepository) CreateStep(payload *model.CaptureStep) error {
	return r.DB.Create(payload).Error
}
