package service

import (
	"cad_practice_backend/internal/model"
	"cad_practice_backend/internal/util"
	"cad_practice_backend/pkg/logger"
	"context"

	"go.uber.org/zap"
)

// multiStepStrategy walks a question through its ordered steps, judging
// each step as a single- or multi-part Part Studio depending on the parent
// question's flag. The attempt completes only when the final step passes.
type multiStepStrategy struct {
	vendor VendorAPI
	steps  attemptQuestionStore
}

func (s *multiStepStrategy) Initiate(ctx context.Context, user *model.AuthUser, q *model.Question) error {
	if q.StartingEID == "" {
		return nil
	}
	featureID, err := s.vendor.InsertDerivedFeature(
		ctx, user.AccessToken, user.Domain,
		user.DocumentID, user.WorkspaceID, user.ElementID,
		q.DocumentID, q.VersionID, q.StartingEID, q.InitMicroversion,
		"Derived Starting Parts",
	)
	if err != nil {
		return util.ErrApiUnavailable
	}
	user.InitContext.DerivedFeatureID = featureID
	return nil
}

func (s *multiStepStrategy) Evaluate(ctx context.Context, user *model.AuthUser, q *model.Question) (*evalOutcome, error) {
	step, err := s.steps.FindStep(q.ID, int(user.CurrStep))
	if err != nil {
		return nil, util.ErrQuestionNotFound
	}

	var out *evalOutcome
	if q.IsMultiPart {
		refs, ok := multiReference(step.RefMasses, step.RefVolumes, step.RefAreas, step.RefInertias, step.RefPartNames)
		if !ok {
			return nil, util.ErrQuestionNotFound
		}
		out, err = evalPartStudioMulti(ctx, s.vendor, user, refs, q.EffectiveTolerance(), user.InitContext.DerivedFeatureID)
	} else {
		ref, ok := singleReference(step.RefMass, step.RefVolume, step.RefArea, step.RefInertia)
		if !ok {
			return nil, util.ErrQuestionNotFound
		}
		out, err = evalPartStudioSingle(ctx, s.vendor, user, ref, q.EffectiveTolerance(), user.InitContext.DerivedFeatureID)
	}
	if err != nil {
		return nil, err
	}
	out.FinalStep = step.IsFinal(q)
	return out, nil
}

func (s *multiStepStrategy) SolutionHint(ctx context.Context, user *model.AuthUser, q *model.Question) string {
	step, err := s.steps.FindStep(q.ID, int(user.CurrStep))
	if err != nil {
		return msgSolutionAtSource
	}
	_, err = s.vendor.InsertDerivedFeature(
		ctx, user.AccessToken, user.Domain,
		user.DocumentID, user.WorkspaceID, user.ElementID,
		q.DocumentID, q.VersionID, step.ElementID, step.RefMicroversion,
		"Derived Reference Part(s)",
	)
	if err != nil {
		logger.Log.Warn("failed to import step reference for solution",
			zap.String("question", q.Key()), zap.Int("step", int(user.CurrStep)), zap.Error(err))
		return msgSolutionAtSource
	}
	return msgSolutionImported
}
