package repository

import (
	"cad_practice_backend/internal/model"

	"gorm.io/gorm"
)

type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) Create(user *model.AuthUser) error {
	return r.DB.Create(user).Error
}

func (r *UserRepository) FindByID(id uint) (*model.AuthUser, error) {
	var user model.AuthUser
	err := r.DB.First(&user, id).Error
	return &user, err
}

func (r *UserRepository) FindByOSUserID(osUserID string) (*model.AuthUser, error) {
	var user model.AuthUser
	err := r.DB.Where("os_user_id = ?", osUserID).First(&user).Error
	return &user, err
}

func (r *UserRepository) Update(user *model.AuthUser) error {
	return r.DB.Save(user).Error
}

// Reviewer management

func (r *UserRepository) FindReviewer(osUserID string) (*model.Reviewer, error) {
	var reviewer model.Reviewer
	err := r.DB.Where("os_user_id = ?", osUserID).First(&reviewer).Error
	return &reviewer, err
}

func (r *UserRepository) FindReviewerByID(id uint) (*model.Reviewer, error) {
	var reviewer model.Reviewer
	err := r.DB.First(&reviewer, id).Error
	return &reviewer, err
}

func (r *UserRepository) FindMainAdmin() (*model.Reviewer, error) {
	var reviewer model.Reviewer
	err := r.DB.Where("is_main_admin = ? AND is_active = ?", true, true).First(&reviewer).Error
	return &reviewer, err
}

func (r *UserRepository) ListReviewers() ([]model.Reviewer, error) {
	var reviewers []model.Reviewer
	err := r.DB.Order("user_name").Find(&reviewers).Error
	return reviewers, err
}

func (r *UserRepository) CreateReviewer(reviewer *model.Reviewer) error {
	return r.DB.Create(reviewer).Error
}

func (r *UserRepository) UpdateReviewer(reviewer *model.Reviewer) error {
	return r.DB.Save(reviewer).Error
}

func (r *UserRepository) DeleteReviewer(id uint) error {
	return r.DB.Delete(&model.Reviewer{}, id).Error
}

// Admin accounts

func (r *UserRepository) FindAdminByUsername(username string) (*model.AdminAccount, error) {
	var admin model.AdminAccount
	err := r.DB.Where("username = ?", username).First(&admin).Error
	return &admin, err
}

func (r *UserRepository) UpdateAdmin(admin *model.AdminAccount) error {
	return r.DB.Save(admin).Error
}
