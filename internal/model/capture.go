package model

import (
	"encoding/json"
	"time"
)

// CaptureRecord is the header row of one background telemetry capture of a
// user's attempt. Kind-specific payloads live in the detail models below,
// linked by CaptureID. Large artifacts (meshes, shaded views) are stored
// through the storage service; only their object keys are kept here.
type CaptureRecord struct {
	BaseModel

	OSUserID     string       `gorm:"size:30;index" json:"osUserId"`
	QuestionID   uint         `gorm:"index" json:"questionId"`
	QuestionType QuestionType `gorm:"size:4" json:"questionType"`

	StartTime      *time.Time `json:"startTime,omitempty"`      // when the question was initiated
	CompletionTime *time.Time `json:"completionTime,omitempty"` // final submission, pass or fail
	AttemptNumber  int        `gorm:"default:0" json:"attemptNumber"`
	IsFinalFailure bool       `gorm:"default:true" json:"isFinalFailure"`

	// Document history events over the attempt's microversion span, with
	// usernames stripped.
	MicroversionTrail json.RawMessage `gorm:"type:json" json:"microversionTrail,omitempty"`

	// Capture jobs run asynchronously after the attempt ends; this tracks
	// when all API queries finished.
	QueryCompletedAt *time.Time `json:"queryCompletedAt,omitempty"`
}

func (CaptureRecord) TableName() string {
	return "capture_records"
}

// CapturePartStudio holds the part studio telemetry payload, used for both
// single-part and multi-part questions.
type CapturePartStudio struct {
	BaseModel

	CaptureID uint `gorm:"uniqueIndex" json:"captureId"`

	// First failed submission
	FirstFailedAt     *time.Time        `json:"firstFailedAt,omitempty"`
	FailedFeatureList json.RawMessage   `gorm:"type:json" json:"failedFeatureList,omitempty"`
	FailedViewKeys    map[string]string `gorm:"serializer:json" json:"failedViewKeys,omitempty"` // view name -> object key
	FailedMeshKey     string            `gorm:"size:255" json:"failedMeshKey,omitempty"`

	// Final submission
	FinalFeatureList json.RawMessage   `gorm:"type:json" json:"finalFeatureList,omitempty"`
	FinalViewKeys    map[string]string `gorm:"serializer:json" json:"finalViewKeys,omitempty"`
	FinalMeshKey     string            `gorm:"size:255" json:"finalMeshKey,omitempty"`
}

func (CapturePartStudio) TableName() string {
	return "capture_part_studios"
}

// CaptureAssembly holds the assembly telemetry payload.
type CaptureAssembly struct {
	BaseModel

	CaptureID uint `gorm:"uniqueIndex" json:"captureId"`

	FirstFailedAt     *time.Time        `json:"firstFailedAt,omitempty"`
	FailedAssemblyDef json.RawMessage   `gorm:"type:json" json:"failedAssemblyDef,omitempty"`
	FailedViewKeys    map[string]string `gorm:"serializer:json" json:"failedViewKeys,omitempty"`

	FinalAssemblyDef json.RawMessage   `gorm:"type:json" json:"finalAssemblyDef,omitempty"`
	FinalViewKeys    map[string]string `gorm:"serializer:json" json:"finalViewKeys,omitempty"`
}

func (CaptureAssembly) TableName() string {
	return "capture_assemblies"
}

// CaptureStep holds the per-step telemetry of a multi-step question. Only
// successful step submissions are captured for MSPS questions.
type CaptureStep struct {
	BaseModel

	CaptureID  uint `gorm:"index:idx_capture_step,unique" json:"captureId"`
	StepNumber int  `gorm:"index:idx_capture_step,unique" json:"stepNumber"`

	CompletedAt time.Time         `json:"completedAt"`
	FeatureList json.RawMessage   `gorm:"type:json" json:"featureList,omitempty"`
	ViewKeys    map[string]string `gorm:"serializer:json" json:"viewKeys,omitempty"`
}

func (CaptureStep) TableName() string {
	return "capture_steps"
}
