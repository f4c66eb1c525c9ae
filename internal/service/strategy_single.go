package service

import (
	"cad_practice_backend/internal/model"
	"cad_practice_backend/internal/util"
	"cad_practice_backend/pkg/logger"
	"context"

	"go.uber.org/zap"
)

// singlePartStrategy handles questions modelled as one part in one Part
// Studio, judged on the grouped mass properties of all bodies.
type singlePartStrategy struct {
	vendor VendorAPI
}

func (s *singlePartStrategy) Initiate(ctx context.Context, user *model.AuthUser, q *model.Question) error {
	return nil
}

func (s *singlePartStrategy) Evaluate(ctx context.Context, user *model.AuthUser, q *model.Question) (*evalOutcome, error) {
	ref, ok := singleReference(q.RefMass, q.RefVolume, q.RefArea, q.RefInertia)
	if !ok {
		return nil, util.ErrQuestionNotFound
	}
	return evalPartStudioSingle(ctx, s.vendor, user, ref, q.EffectiveTolerance(), "")
}

func (s *singlePartStrategy) SolutionHint(ctx context.Context, user *model.AuthUser, q *model.Question) string {
	_, err := s.vendor.InsertDerivedFeature(
		ctx, user.AccessToken, user.Domain,
		user.DocumentID, user.WorkspaceID, user.ElementID,
		q.DocumentID, q.VersionID, q.ElementID, q.RefMicroversion,
		"Derived Reference Part",
	)
	if err != nil {
		logger.Log.Warn("failed to import reference part for solution",
			zap.String("question", q.Key()), zap.Error(err))
		return msgSolutionAtSource
	}
	return msgSolutionImported
}
