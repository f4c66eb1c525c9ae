package model

// QuestionStep is one ordered step of a multi-step (MSPS) question. Each
// step carries its own reference geometry: scalar fields when the parent
// question is single-part per step, the array fields otherwise.
type QuestionStep struct {
	BaseModel

	QuestionID uint `gorm:"index;not null" json:"questionId"`
	StepNumber int  `gorm:"default:1" json:"stepNumber"` // 1-based

	ElementID       string `gorm:"size:40;not null" json:"elementId"`
	RefMicroversion string `gorm:"size:40" json:"-"`
	OSDrawingEID    string `gorm:"size:40" json:"osDrawingEid"`
	JpegDrawingEID  string `gorm:"size:40" json:"jpegDrawingEid"`
	DrawingJPEG     string `gorm:"type:longtext" json:"drawingJpeg"`

	AdditionalInstructions string `gorm:"type:text" json:"additionalInstructions"`

	// Reference geometry (see Question for field meaning)
	RefMass      *float64    `json:"-"`
	RefVolume    *float64    `json:"-"`
	RefArea      *float64    `json:"-"`
	RefInertia   []float64   `gorm:"serializer:json" json:"-"`
	RefMasses    []float64   `gorm:"serializer:json" json:"-"`
	RefVolumes   []float64   `gorm:"serializer:json" json:"-"`
	RefAreas     []float64   `gorm:"serializer:json" json:"-"`
	RefInertias  [][]float64 `gorm:"serializer:json" json:"-"`
	RefPartNames []string    `gorm:"serializer:json" json:"-"`
}

func (QuestionStep) TableName() string {
	return "question_steps"
}

// IsFinal reports whether this is the last step of the parent question.
func (s *QuestionStep) IsFinal(q *Question) bool {
	return s.StepNumber == q.TotalSteps
}
