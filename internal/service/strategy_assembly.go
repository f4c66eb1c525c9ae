package service

import (
	"cad_practice_backend/internal/geometry"
	"cad_practice_backend/internal/model"
	"cad_practice_backend/internal/util"
	"context"
)

// assemblyStrategy handles mating challenges. The app imports the part
// instances itself when the attempt begins, and the submission is judged
// solely on the minimum principal inertia of the whole assembly.
type assemblyStrategy struct {
	vendor VendorAPI
}

func (s *assemblyStrategy) Initiate(ctx context.Context, user *model.AuthUser, q *model.Question) error {
	err := s.vendor.CreateAssemblyInstances(
		ctx, user.AccessToken, user.Domain,
		user.DocumentID, user.WorkspaceID, user.ElementID,
		q.DocumentID, q.VersionID, q.ElementID,
	)
	if err != nil {
		return util.ErrApiUnavailable
	}
	def, err := s.vendor.GetAssemblyDefinition(ctx, user.AccessToken, user.Domain, user.DocumentID, "w", user.WorkspaceID, user.ElementID, false)
	if err != nil {
		return util.ErrApiUnavailable
	}
	// Cached so evaluation can detect deleted or replaced instances.
	user.InitContext.AssemblyInstanceIDs = def.InstanceIDs()
	return nil
}

func (s *assemblyStrategy) Evaluate(ctx context.Context, user *model.AuthUser, q *model.Question) (*evalOutcome, error) {
	def, err := s.vendor.GetAssemblyDefinition(ctx, user.AccessToken, user.Domain, user.DocumentID, "w", user.WorkspaceID, user.ElementID, true)
	if err != nil {
		return nil, err
	}
	props, err := s.vendor.GetMassProperties(ctx, user.AccessToken, user.Domain, string(model.ElementTypeAssembly), user.DocumentID, "w", user.WorkspaceID, user.ElementID, true)
	if err != nil {
		return nil, err
	}

	out := &evalOutcome{FeatureCount: def.MateFeatureCount()}

	if out.FeatureCount == 0 {
		out.Precondition = msgNoMates
		return out, nil
	}

	present := make(map[string]struct{})
	for _, id := range def.InstanceIDs() {
		present[id] = struct{}{}
	}
	for _, id := range user.InitContext.AssemblyInstanceIDs {
		if _, ok := present[id]; !ok {
			out.Precondition = msgInstanceGone
			return out, nil
		}
	}

	if len(q.RefInertia) == 0 || len(props.PrincipalInertia) == 0 {
		return nil, util.ErrApiUnavailable
	}
	if !geometry.CompareAssemblyInertia(q.RefInertia[0], props.PrincipalInertia[0], q.EffectiveTolerance()) {
		out.Message = msgAssemblyMismatch
		return out, nil
	}
	out.Passed = true
	return out, nil
}

// No solution import exists for assemblies; the user is pointed at the
// reference document.
func (s *assemblyStrategy) SolutionHint(ctx context.Context, user *model.AuthUser, q *model.Question) string {
	return "To view the solution, please visit the source document to view the reference assembly."
}
