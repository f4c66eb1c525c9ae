package model

import "time"

// CompletionRecord is one successful completion of a question by a user.
// Records are append-only and keyed by (user, question key); the history
// persists after the live attempt state is cleared.
type CompletionRecord struct {
	BaseModel

	UserID      uint   `gorm:"index:idx_completion_user_question" json:"userId"`
	QuestionKey string `gorm:"size:40;index:idx_completion_user_question" json:"questionKey"`

	CompletedAt  time.Time `json:"completedAt"`
	Duration     float64   `json:"duration"` // seconds from initiate to passing submission
	FeatureCount int       `json:"featureCount"`
}

func (CompletionRecord) TableName() string {
	return "completion_records"
}

// FailureRecord is one abandoned attempt (give-up after at least one failed
// submission). Attempts given up without any failed submission are not
// recorded.
type FailureRecord struct {
	BaseModel

	UserID      uint   `gorm:"index:idx_failure_user_question" json:"userId"`
	QuestionKey string `gorm:"size:40;index:idx_failure_user_question" json:"questionKey"`

	AbandonedAt time.Time `json:"abandonedAt"`
	Duration    float64   `json:"duration"` // seconds from initiate to give-up
}

func (FailureRecord) TableName() string {
	return "failure_records"
}
