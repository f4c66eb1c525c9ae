package service

import (
	"cad_practice_backend/internal/model"
	"cad_practice_backend/internal/util"
	"cad_practice_backend/pkg/logger"
	"context"

	"go.uber.org/zap"
)

// multiPartStrategy handles questions with several parts in one Part
// Studio. Questions may specify a starting Part Studio whose parts are
// derived-imported into the user's workspace when the attempt begins.
type multiPartStrategy struct {
	vendor VendorAPI
}

func (s *multiPartStrategy) Initiate(ctx context.Context, user *model.AuthUser, q *model.Question) error {
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
	// The id exempts the app's own import from the anti-cheat check.
	user.InitContext.DerivedFeatureID = featureID
	return nil
}

func (s *multiPartStrategy) Evaluate(ctx context.Context, user *model.AuthUser, q *model.Question) (*evalOutcome, error) {
	refs, ok := multiReference(q.RefMasses, q.RefVolumes, q.RefAreas, q.RefInertias, q.RefPartNames)
	if !ok {
		return nil, util.ErrQuestionNotFound
	}
	return evalPartStudioMulti(ctx, s.vendor, user, refs, q.EffectiveTolerance(), user.InitContext.DerivedFeatureID)
}

func (s *multiPartStrategy) SolutionHint(ctx context.Context, user *model.AuthUser, q *model.Question) string {
	_, err := s.vendor.InsertDerivedFeature(
		ctx, user.AccessToken, user.Domain,
		user.DocumentID, user.WorkspaceID, user.ElementID,
		q.DocumentID, q.VersionID, q.ElementID, q.RefMicroversion,
		"Derived Reference Parts",
	)
	if err != nil {
		logger.Log.Warn("failed to import reference parts for solution",
			zap.String("question", q.Key()), zap.Error(err))
		return msgSolutionAtSource
	}
	return msgSolutionImported
}
