package service

import (
	"cad_practice_backend/internal/model"
	"cad_practice_backend/internal/onshape"
	"cad_practice_backend/internal/repository"
	"cad_practice_backend/internal/util"
	"cad_practice_backend/pkg/logger"
	"context"
	"sort"

	"go.uber.org/zap"
)

// QuestionVendorAPI is the slice of the Onshape client used when authoring
// questions: reference geometry is read once from a pinned version of the
// source document.
type QuestionVendorAPI interface {
	GetElements(ctx context.Context, token, did, vid, elementID string) ([]onshape.Element, error)
	GetMassProperties(ctx context.Context, token, domain, etype, did, wvm, wvmid, eid string, massAsGroup bool) (*onshape.MassProperties, error)
	GetPartList(ctx context.Context, token, domain, did, wvm, wvmid, eid string) ([]onshape.Part, error)
	GetThumbnail(ctx context.Context, token, etype, did, vid, eid string) (string, error)
	GetBlobDrawing(ctx context.Context, token, did, vid, eid string) (string, error)
}

type adminCredentialSource interface {
	AdminCredential(ctx context.Context) (string, error)
}

// CreateQuestionInput is the admin-facing description of a new challenge.
// Everything else on the Question is derived from the vendor.
type CreateQuestionInput struct {
	Type            model.QuestionType `json:"type" binding:"required"`
	Name            string             `json:"name" binding:"required"`
	Difficulty      string             `json:"difficulty"`
	DocumentID      string             `json:"documentId" binding:"required"`
	VersionID       string             `json:"versionId" binding:"required"`
	ElementID       string             `json:"elementId" binding:"required"`
	AllowedElemType model.ElementType  `json:"allowedElementType"`
	OSDrawingEID    string             `json:"osDrawingEid"`
	JpegDrawingEID  string             `json:"jpegDrawingEid"`
	StartingEID     string             `json:"startingEid"`
	Tolerance       *float64           `json:"tolerance"`
	IsMultiPart     bool               `json:"isMultiPart"`
	Instructions    string             `json:"additionalInstructions"`
}

// CreateStepInput appends one step to a multi-step question.
type CreateStepInput struct {
	ElementID      string `json:"elementId" binding:"required"`
	OSDrawingEID   string `json:"osDrawingEid"`
	JpegDrawingEID string `json:"jpegDrawingEid"`
	Instructions   string `json:"additionalInstructions"`
}

// CatalogueEntry is one row of the question list shown to users.
type CatalogueEntry struct {
	ID          uint               `json:"id"`
	Type        model.QuestionType `json:"type"`
	Name        string             `json:"name"`
	Difficulty  string             `json:"difficulty"`
	Thumbnail   string             `json:"thumbnail,omitempty"`
	IsPublished bool               `json:"isPublished"`
	AverageTime string             `json:"averageTime"`
	TotalSteps  int                `json:"totalSteps,omitempty"`
}

// QuestionService owns the authoring lifecycle of challenges: creation with
// a one-time reference-geometry fetch, step management, and publishing.
type QuestionService struct {
	Questions *repository.QuestionRepository
	Vendor    QuestionVendorAPI
	Admin     adminCredentialSource
}

func NewQuestionService(questions *repository.QuestionRepository, vendor QuestionVendorAPI, admin adminCredentialSource) *QuestionService {
	return &QuestionService{
		Questions: questions,
		Vendor:    vendor,
		Admin:     admin,
	}
}

// Create fetches the reference geometry and display assets from the pinned
// source version and stores the new question unpublished.
func (s *QuestionService) Create(ctx context.Context, input CreateQuestionInput) (*model.Question, error) {
	token, err := s.Admin.AdminCredential(ctx)
	if err != nil {
		return nil, err
	}

	q := &model.Question{
		Type:                   input.Type,
		Name:                   input.Name,
		Difficulty:             input.Difficulty,
		DocumentID:             input.DocumentID,
		VersionID:              input.VersionID,
		ElementID:              input.ElementID,
		AllowedElemType:        input.AllowedElemType,
		OSDrawingEID:           input.OSDrawingEID,
		JpegDrawingEID:         input.JpegDrawingEID,
		StartingEID:            input.StartingEID,
		Tolerance:              input.Tolerance,
		AdditionalInstructions: input.Instructions,
	}
	switch input.Type {
	case model.QuestionTypeSinglePart, model.QuestionTypeMultiPart:
		q.ElementType = model.ElementTypePartStudio
	case model.QuestionTypeAssembly:
		q.ElementType = model.ElementTypeAssembly
		q.AllowedElemType = model.ElementTypeAssembly
	case model.QuestionTypeMultiStep:
		q.ElementType = model.ElementTypePartStudio
		q.AllowedElemType = model.ElementTypePartStudio
		q.IsMultiStep = true
		q.IsMultiPart = input.IsMultiPart
	default:
		return nil, util.ErrQuestionNotFound
	}
	if q.AllowedElemType == "" {
		q.AllowedElemType = q.ElementType
	}

	if q.RefMicroversion, err = s.elementMicroversion(ctx, token, q.DocumentID, q.VersionID, q.ElementID); err != nil {
		return nil, err
	}
	if q.StartingEID != "" {
		if q.InitMicroversion, err = s.elementMicroversion(ctx, token, q.DocumentID, q.VersionID, q.StartingEID); err != nil {
			return nil, err
		}
	}

	if err := s.fetchReferenceGeometry(ctx, token, q); err != nil {
		return nil, err
	}
	s.fetchDisplayAssets(ctx, token, q)

	if err := s.Questions.Create(q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *QuestionService) elementMicroversion(ctx context.Context, token, did, vid, eid string) (string, error) {
	elements, err := s.Vendor.GetElements(ctx, token, did, vid, eid)
	if err != nil || len(elements) == 0 {
		return "", util.ErrApiUnavailable
	}
	return elements[0].MicroversionID, nil
}

func (s *QuestionService) fetchReferenceGeometry(ctx context.Context, token string, q *model.Question) error {
	switch q.Type {
	case model.QuestionTypeSinglePart:
		props, err := s.Vendor.GetMassProperties(ctx, token, "", string(q.ElementType), q.DocumentID, "v", q.VersionID, q.ElementID, true)
		if err != nil {
			return util.ErrApiUnavailable
		}
		all, ok := props.AllBodies()
		if !ok || len(all.Mass) == 0 || len(all.Volume) == 0 || len(all.Periphery) == 0 {
			return util.ErrNoBodiesFound
		}
		q.RefMass = &all.Mass[0]
		q.RefVolume = &all.Volume[0]
		q.RefArea = &all.Periphery[0]
		q.RefInertia = all.PrincipalInertia

	case model.QuestionTypeMultiPart:
		props, err := s.Vendor.GetMassProperties(ctx, token, "", string(q.ElementType), q.DocumentID, "v", q.VersionID, q.ElementID, false)
		if err != nil {
			return util.ErrApiUnavailable
		}
		if len(props.Bodies) == 0 {
			return util.ErrNoBodiesFound
		}
		parts, err := s.Vendor.GetPartList(ctx, token, "", q.DocumentID, "v", q.VersionID, q.ElementID)
		if err != nil {
			return util.ErrApiUnavailable
		}
		names := make(map[string]string, len(parts))
		for _, p := range parts {
			names[p.PartID] = p.Name
		}
		// Stable field order keyed by part id; bodies maps are unordered.
		ids := make([]string, 0, len(props.Bodies))
		for id := range props.Bodies {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			body := props.Bodies[id]
			if len(body.Mass) == 0 || len(body.Volume) == 0 || len(body.Periphery) == 0 || len(body.PrincipalInertia) == 0 {
				return util.ErrApiUnavailable
			}
			q.RefMasses = append(q.RefMasses, body.Mass[0])
			q.RefVolumes = append(q.RefVolumes, body.Volume[0])
			q.RefAreas = append(q.RefAreas, body.Periphery[0])
			q.RefInertias = append(q.RefInertias, body.PrincipalInertia)
			q.RefPartNames = append(q.RefPartNames, names[id])
		}

	case model.QuestionTypeAssembly:
		props, err := s.Vendor.GetMassProperties(ctx, token, "", string(q.ElementType), q.DocumentID, "v", q.VersionID, q.ElementID, true)
		if err != nil {
			return util.ErrApiUnavailable
		}
		if len(props.PrincipalInertia) == 0 {
			return util.ErrNoBodiesFound
		}
		q.RefInertia = props.PrincipalInertia

	case model.QuestionTypeMultiStep:
		// Reference geometry lives on the steps.
	}
	return nil
}

// Display assets are best-effort: a missing drawing leaves the question
// usable, just undecorated.
func (s *QuestionService) fetchDisplayAssets(ctx context.Context, token string, q *model.Question) {
	thumb, err := s.Vendor.GetThumbnail(ctx, token, string(q.ElementType), q.DocumentID, q.VersionID, q.ElementID)
	if err != nil {
		logger.Log.Warn("failed to fetch question thumbnail", zap.String("name", q.Name), zap.Error(err))
	} else {
		q.Thumbnail = thumb
	}
	if q.JpegDrawingEID != "" {
		jpeg, err := s.Vendor.GetBlobDrawing(ctx, token, q.DocumentID, q.VersionID, q.JpegDrawingEID)
		if err != nil {
			logger.Log.Warn("failed to fetch question drawing", zap.String("name", q.Name), zap.Error(err))
		} else {
			q.DrawingJPEG = jpeg
		}
	}
}

// AddStep appends a step to a multi-step question, fetching the step's
// reference geometry from the same pinned version.
func (s *QuestionService) AddStep(ctx context.Context, questionID uint, input CreateStepInput) (*model.QuestionStep, error) {
	q, err := s.Questions.FindByID(questionID)
	if err != nil {
		return nil, util.ErrQuestionNotFound
	}
	if q.Type != model.QuestionTypeMultiStep {
		return nil, util.ErrElementTypeMismatch
	}
	token, err := s.Admin.AdminCredential(ctx)
	if err != nil {
		return nil, err
	}

	count, err := s.Questions.CountSteps(q.ID)
	if err != nil {
		return nil, err
	}
	step := &model.QuestionStep{
		QuestionID:             q.ID,
		StepNumber:             int(count) + 1,
		ElementID:              input.ElementID,
		OSDrawingEID:           input.OSDrawingEID,
		JpegDrawingEID:         input.JpegDrawingEID,
		AdditionalInstructions: input.Instructions,
	}
	if step.RefMicroversion, err = s.elementMicroversion(ctx, token, q.DocumentID, q.VersionID, input.ElementID); err != nil {
		return nil, err
	}
	if err := s.fetchStepGeometry(ctx, token, q, step); err != nil {
		return nil, err
	}
	if input.JpegDrawingEID != "" {
		if jpeg, err := s.Vendor.GetBlobDrawing(ctx, token, q.DocumentID, q.VersionID, input.JpegDrawingEID); err == nil {
			step.DrawingJPEG = jpeg
		}
	}

	if err := s.Questions.CreateStep(step); err != nil {
		return nil, err
	}
	q.TotalSteps = step.StepNumber
	if err := s.Questions.Update(q); err != nil {
		return nil, err
	}
	return step, nil
}

func (s *QuestionService) fetchStepGeometry(ctx context.Context, token string, q *model.Question, step *model.QuestionStep) error {
	props, err := s.Vendor.GetMassProperties(ctx, token, "", string(model.ElementTypePartStudio), q.DocumentID, "v", q.VersionID, step.ElementID, !q.IsMultiPart)
	if err != nil {
		return util.ErrApiUnavailable
	}
	if !q.IsMultiPart {
		all, ok := props.AllBodies()
		if !ok || len(all.Mass) == 0 || len(all.Volume) == 0 || len(all.Periphery) == 0 {
			return util.ErrNoBodiesFound
		}
		step.RefMass = &all.Mass[0]
		step.RefVolume = &all.Volume[0]
		step.RefArea = &all.Periphery[0]
		step.RefInertia = all.PrincipalInertia
		return nil
	}

	if len(props.Bodies) == 0 {
		return util.ErrNoBodiesFound
	}
	parts, err := s.Vendor.GetPartList(ctx, token, "", q.DocumentID, "v", q.VersionID, step.ElementID)
	if err != nil {
		return util.ErrApiUnavailable
	}
	names := make(map[string]string, len(parts))
	for _, p := range parts {
		names[p.PartID] = p.Name
	}
	ids := make([]string, 0, len(props.Bodies))
	for id := range props.Bodies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		body := props.Bodies[id]
		if len(body.Mass) == 0 || len(body.Volume) == 0 || len(body.Periphery) == 0 || len(body.PrincipalInertia) == 0 {
			return util.ErrApiUnavailable
		}
		step.RefMasses = append(step.RefMasses, body.Mass[0])
		step.RefVolumes = append(step.RefVolumes, body.Volume[0])
		step.RefAreas = append(step.RefAreas, body.Periphery[0])
		step.RefInertias = append(step.RefInertias, body.PrincipalInertia)
		step.RefPartNames = append(step.RefPartNames, names[id])
	}
	return nil
}

// SetPublished toggles visibility. A question can only go live with a name,
// a drawing, and its reference geometry in place; taking one offline also
// stops its data collection.
func (s *QuestionService) SetPublished(questionID uint, publish bool) (*model.Question, error) {
	q, err := s.Questions.FindByID(questionID)
	if err != nil {
		return nil, util.ErrQuestionNotFound
	}
	if publish {
		if q.Name == "" || q.OSDrawingEID == "" || !q.HasReferenceGeometry() {
			return nil, util.ErrQuestionNotPublished
		}
		if q.Type == model.QuestionTypeMultiStep && q.TotalSteps == 0 {
			return nil, util.ErrQuestionNotPublished
		}
	}
	q.IsPublished = publish
	if !publish {
		q.IsCollectingData = false
	}
	if err := s.Questions.Update(q); err != nil {
		return nil, err
	}
	return q, nil
}

// SetCollecting toggles telemetry collection for a published question.
func (s *QuestionService) SetCollecting(questionID uint, collecting bool) (*model.Question, error) {
	q, err := s.Questions.FindByID(questionID)
	if err != nil {
		return nil, util.ErrQuestionNotFound
	}
	if collecting && !q.IsPublished {
		return nil, util.ErrQuestionNotPublished
	}
	q.IsCollectingData = collecting
	if err := s.Questions.Update(q); err != nil {
		return nil, err
	}
	return q, nil
}

// Catalogue lists the questions a user may start from their current
// element. Reviewers additionally see unpublished questions.
func (s *QuestionService) Catalogue(user *model.AuthUser) ([]CatalogueEntry, error) {
	var (
		questions []model.Question
		err       error
	)
	if user.IsReviewer {
		questions, err = s.Questions.ListAll()
	} else {
		questions, err = s.Questions.ListPublished(user.ElementType)
	}
	if err != nil {
		return nil, err
	}

	entries := make([]CatalogueEntry, 0, len(questions))
	for i := range questions {
		q := &questions[i]
		if user.IsReviewer && q.AllowedElemType != model.ElementTypeAll && q.AllowedElemType != user.ElementType {
			continue
		}
		entries = append(entries, CatalogueEntry{
			ID:          q.ID,
			Type:        q.Type,
			Name:        q.Name,
			Difficulty:  q.Difficulty,
			Thumbnail:   q.Thumbnail,
			IsPublished: q.IsPublished,
			AverageTime: q.AverageTimeString(),
			TotalSteps:  q.TotalSteps,
		})
	}
	return entries, nil
}

// Get returns one question with its steps when it has any.
func (s *QuestionService) Get(qtype model.QuestionType, id uint) (*model.Question, []model.QuestionStep, error) {
	q, err := s.Questions.FindByTypeAndID(qtype, id)
	if err != nil {
		return nil, nil, util.ErrQuestionNotFound
	}
	var steps []model.QuestionStep
	if q.Type == model.QuestionTypeMultiStep {
		if steps, err = s.Questions.ListSteps(q.ID); err != nil {
			return nil, nil, err
		}
	}
	return q, steps, nil
}

// Delete removes an unpublished question.
func (s *QuestionService) Delete(questionID uint) error {
	q, err := s.Questions.FindByID(questionID)
	if err != nil {
		return util.ErrQuestionNotFound
	}
	if q.IsPublished {
		return util.ErrPermissionDenied
	}
	return s.Questions.Delete(q.ID)
}
