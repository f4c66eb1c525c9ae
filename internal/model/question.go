package model

import (
	"fmt"
	"math"
)

// QuestionType discriminates the four question kinds. Behaviour per kind
// lives in the service layer's strategy table, not in subclasses.
type QuestionType string

const (
	QuestionTypeUnknown    QuestionType = "UNKN"
	QuestionTypeSinglePart QuestionType = "SPPS" // single-part part studio
	QuestionTypeMultiPart  QuestionType = "MPPS" // multi-part part studio
	QuestionTypeAssembly   QuestionType = "ASMB" // assembly mating
	QuestionTypeMultiStep  QuestionType = "MSPS" // multi-step part studio
)

const (
	DifficultyUnclassified = "NA"
	DifficultyChallenging  = "CH"
	DifficultyMedium       = "ME"
	DifficultyEasy         = "EA"
)

// Default relative tolerances for geometry comparison. Assemblies are
// checked far more strictly because the inertia of a correctly mated
// assembly is numerically very stable.
const (
	DefaultPartTolerance     = 0.005
	DefaultAssemblyTolerance = 1e-7
)

// Question is a CAD modelling challenge with stored reference geometry.
// It is a tagged union over the four question kinds: scalar reference
// properties apply to SPPS, the parallel array fields to MPPS, the
// inertia-only reference to ASMB, and the step fields to MSPS.
//
// A question is created by an admin action that fetches the reference
// geometry from the vendor once; afterwards only the completion statistics
// change, appended on each successful completion.
type Question struct {
	BaseModel

	Type        QuestionType `gorm:"column:question_type;size:4;index" json:"type"`
	Difficulty  string       `gorm:"size:2;default:'NA'" json:"difficulty"`
	IsMultiStep bool         `gorm:"default:false" json:"isMultiStep"`

	// Vendor document coordinates of the reference solution
	DocumentID       string      `gorm:"size:40;not null" json:"documentId"`
	VersionID        string      `gorm:"size:40;not null" json:"versionId"`
	ElementID        string      `gorm:"size:40;not null" json:"elementId"`
	ElementType      ElementType `gorm:"size:40;default:'N/A'" json:"elementType"`
	AllowedElemType  ElementType `gorm:"size:40;default:'all'" json:"allowedElementType"`
	OSDrawingEID     string      `gorm:"size:40" json:"osDrawingEid"`
	JpegDrawingEID   string      `gorm:"size:40" json:"jpegDrawingEid"`
	RefMicroversion  string      `gorm:"size:40" json:"-"` // pinned for derived import
	StartingEID      string      `gorm:"size:40" json:"startingEid"` // optional starting part studio
	InitMicroversion string      `gorm:"size:40" json:"-"`

	Name                   string `gorm:"size:400;uniqueIndex" json:"name"`
	AdditionalInstructions string `gorm:"type:text" json:"additionalInstructions"`

	// Display assets, fetched once from the vendor at creation time
	Thumbnail   string `gorm:"type:longtext" json:"thumbnail"`   // base64 PNG
	DrawingJPEG string `gorm:"type:longtext" json:"drawingJpeg"` // base64 JPEG

	IsPublished      bool `gorm:"default:false" json:"isPublished"`
	IsCollectingData bool `gorm:"default:false" json:"isCollectingData"`

	// Custom relative tolerance; nil falls back to the kind default.
	Tolerance *float64 `json:"tolerance,omitempty"`

	// Reference geometry, SPPS (scalars; RefInertia holds the 3 principal values)
	RefMass    *float64  `json:"-"`
	RefVolume  *float64  `json:"-"`
	RefArea    *float64  `json:"-"`
	RefInertia []float64 `gorm:"serializer:json" json:"-"`

	// Reference geometry, MPPS (parallel arrays, one entry per part)
	RefMasses    []float64   `gorm:"serializer:json" json:"-"`
	RefVolumes   []float64   `gorm:"serializer:json" json:"-"`
	RefAreas     []float64   `gorm:"serializer:json" json:"-"`
	RefInertias  [][]float64 `gorm:"serializer:json" json:"-"`
	RefPartNames []string    `gorm:"serializer:json" json:"-"`

	// MSPS only
	IsMultiPart bool `gorm:"default:false" json:"isMultiPart"`
	TotalSteps  int  `gorm:"default:0" json:"totalSteps"`

	// Completion statistics
	CompletionCount         uint      `gorm:"default:0" json:"completionCount"`
	ReviewerCompletionCount uint      `gorm:"default:0" json:"reviewerCompletionCount"`
	CompletionTimes         []float64 `gorm:"serializer:json" json:"-"` // seconds
	CompletionFeatureCounts []int     `gorm:"serializer:json" json:"-"`
}

func (Question) TableName() string {
	return "questions"
}

// Key is the identity string used to key per-user history records,
// e.g. "SPPS_12".
func (q *Question) Key() string {
	return fmt.Sprintf("%s_%d", q.Type, q.ID)
}

// EffectiveTolerance resolves the custom tolerance against the kind default.
func (q *Question) EffectiveTolerance() float64 {
	if q.Tolerance != nil {
		return *q.Tolerance
	}
	if q.Type == QuestionTypeAssembly {
		return DefaultAssemblyTolerance
	}
	return DefaultPartTolerance
}

// Completion times above this many seconds are treated as outliers
// (abandoned sessions) and excluded from averages.
const completionTimeOutlier = 4000

// AverageTimeString renders the average completion time, outliers excluded,
// or "" when the question has never been completed.
func (q *Question) AverageTimeString() string {
	if q.CompletionCount == 0 {
		return ""
	}
	var sum float64
	var n int
	for _, t := range q.CompletionTimes {
		if t <= completionTimeOutlier {
			sum += t
			n++
		}
	}
	if n == 0 {
		return ""
	}
	avg := sum / float64(n)
	return fmt.Sprintf("%d minutes %d seconds", int(avg)/60, int(math.Round(math.Mod(avg, 60))))
}

// FilteredCompletionTimes returns the completion durations with outliers
// removed, for client-side distribution charts.
func (q *Question) FilteredCompletionTimes() []float64 {
	out := make([]float64, 0, len(q.CompletionTimes))
	for _, t := range q.CompletionTimes {
		if t <= completionTimeOutlier {
			out = append(out, t)
		}
	}
	return out
}

// HasReferenceGeometry reports whether the kind-dependent reference
// properties have been populated, one of the publish preconditions.
func (q *Question) HasReferenceGeometry() bool {
	switch q.Type {
	case QuestionTypeSinglePart:
		return q.RefMass != nil && len(q.RefInertia) > 0
	case QuestionTypeMultiPart:
		return len(q.RefMasses) > 0 && len(q.RefPartNames) == len(q.RefMasses)
	case QuestionTypeAssembly:
		return len(q.RefInertia) > 0
	case QuestionTypeMultiStep:
		// Step geometry lives on the QuestionStep children.
		return true
	}
	return false
}
