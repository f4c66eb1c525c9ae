package service

import (
	"cad_practice_backend/internal/geometry"
	"cad_practice_backend/internal/model"
	"cad_practice_backend/internal/util"
	"context"
)

// User-facing submission messages. Precondition rejections tell the user
// what to fix before a real evaluation can happen.
const (
	msgNoParts        = "No parts found - please model the part then try re-submitting."
	msgDerivedImport  = "It is detected that your model contains derived features through import. Please complete the task with native Onshape features only and resubmit for evaluation."
	msgNoMaterial     = "Please remember to assign a material to your part."
	msgNoMaterials    = "Material assignment is missing for one or more of the submitted part(s)."
	msgPartCountWrong = "The number of parts in your Part Studio does not match the reference Part Studio."
	msgNoMates        = "No mate features found - please mate the parts then try re-submitting."
	msgInstanceGone   = "It is detected that you did not use all the part instances automatically imported by the app, which you may have deleted or replaced. You can either restore your workspace to the microversion before you deleted the part instance(s) or restart the challenge by returning to home."

	msgAssemblyMismatch = "The difference between your mated assembly and the reference assembly is larger than the allowed range of tolerance. Please try again and re-submit."

	msgSolutionImported = "The reference parts are imported into your working Part Studio. You can follow the instructions to line up the reference parts to your own and visualize the difference."
	msgSolutionAtSource = "To view the solution, please visit the source document to view the reference part. You can also import the reference part(s) into your working Part Studio using the derived feature to visualize the difference."
)

// evalPartStudioSingle runs the single-part submission pipeline: fetch the
// grouped mass properties, apply the precondition checks in order, then
// compare against the reference. allowedDerived names a derived feature the
// app itself inserted, which is exempt from the anti-cheat check.
func evalPartStudioSingle(
	ctx context.Context,
	vendor VendorAPI,
	user *model.AuthUser,
	ref geometry.Properties,
	tol float64,
	allowedDerived string,
) (*evalOutcome, error) {
	features, err := vendor.GetFeatureList(ctx, user.AccessToken, user.Domain, string(model.ElementTypePartStudio), user.DocumentID, "w", user.WorkspaceID, user.ElementID)
	if err != nil {
		return nil, err
	}
	props, err := vendor.GetMassProperties(ctx, user.AccessToken, user.Domain, string(model.ElementTypePartStudio), user.DocumentID, "w", user.WorkspaceID, user.ElementID, true)
	if err != nil {
		return nil, err
	}

	out := &evalOutcome{FeatureCount: len(features.Features)}

	if len(props.Bodies) == 0 {
		out.Precondition = msgNoParts
		return out, nil
	}
	if features.HasDerivedImport(allowedDerived) {
		out.Precondition = msgDerivedImport
		return out, nil
	}
	all, ok := props.AllBodies()
	if !ok || len(all.Mass) == 0 || len(all.Volume) == 0 || len(all.Periphery) == 0 || len(all.PrincipalInertia) == 0 {
		return nil, util.ErrApiUnavailable
	}
	if !all.HasMass {
		out.Precondition = msgNoMaterial
		return out, nil
	}

	sub := geometry.Properties{
		Mass:       all.Mass[0],
		Volume:     all.Volume[0],
		Area:       all.Periphery[0],
		InertiaMin: all.PrincipalInertia[0],
	}
	pass, report := geometry.CompareSingle(ref, sub, tol)
	out.Passed = pass
	out.Mismatch = report
	return out, nil
}

// evalPartStudioMulti is the multi-part pipeline. Bodies come back keyed by
// part id, and names are resolved from the part list purely for display.
func evalPartStudioMulti(
	ctx context.Context,
	vendor VendorAPI,
	user *model.AuthUser,
	refs []geometry.PartProperties,
	tol float64,
	allowedDerived string,
) (*evalOutcome, error) {
	features, err := vendor.GetFeatureList(ctx, user.AccessToken, user.Domain, string(model.ElementTypePartStudio), user.DocumentID, "w", user.WorkspaceID, user.ElementID)
	if err != nil {
		return nil, err
	}
	props, err := vendor.GetMassProperties(ctx, user.AccessToken, user.Domain, string(model.ElementTypePartStudio), user.DocumentID, "w", user.WorkspaceID, user.ElementID, false)
	if err != nil {
		return nil, err
	}
	parts, err := vendor.GetPartList(ctx, user.AccessToken, user.Domain, user.DocumentID, "w", user.WorkspaceID, user.ElementID)
	if err != nil {
		return nil, err
	}

	out := &evalOutcome{FeatureCount: len(features.Features)}

	if len(props.Bodies) == 0 {
		out.Precondition = msgNoParts
		return out, nil
	}
	if features.HasDerivedImport(allowedDerived) {
		out.Precondition = msgDerivedImport
		return out, nil
	}
	for _, body := range props.Bodies {
		if !body.HasMass {
			out.Precondition = msgNoMaterials
			return out, nil
		}
	}
	if len(props.Bodies) != len(refs) {
		out.Precondition = msgPartCountWrong
		out.CountMismatch = true
		return out, nil
	}

	names := make(map[string]string, len(parts))
	for _, p := range parts {
		names[p.PartID] = p.Name
	}
	subs := make([]geometry.PartProperties, 0, len(props.Bodies))
	for partID, body := range props.Bodies {
		if len(body.Mass) == 0 || len(body.Volume) == 0 || len(body.Periphery) == 0 || len(body.PrincipalInertia) == 0 {
			return nil, util.ErrApiUnavailable
		}
		subs = append(subs, geometry.PartProperties{
			Properties: geometry.Properties{
				Mass:       body.Mass[0],
				Volume:     body.Volume[0],
				Area:       body.Periphery[0],
				InertiaMin: body.PrincipalInertia[0],
			},
			Name: names[partID],
		})
	}

	pass, report := geometry.CompareMultiPart(refs, subs, tol)
	out.Passed = pass
	out.PartialMatch = report
	return out, nil
}

func singleReference(mass, volume, area *float64, inertia []float64) (geometry.Properties, bool) {
	if mass == nil || volume == nil || area == nil || len(inertia) == 0 {
		return geometry.Properties{}, false
	}
	return geometry.Properties{Mass: *mass, Volume: *volume, Area: *area, InertiaMin: inertia[0]}, true
}

func multiReference(masses, volumes, areas []float64, inertias [][]float64, partNames []string) ([]geometry.PartProperties, bool) {
	n := len(masses)
	if n == 0 || len(volumes) != n || len(areas) != n || len(inertias) != n {
		return nil, false
	}
	refs := make([]geometry.PartProperties, n)
	for i := 0; i < n; i++ {
		if len(inertias[i]) == 0 {
			return nil, false
		}
		refs[i] = geometry.PartProperties{
			Properties: geometry.Properties{
				Mass:       masses[i],
				Volume:     volumes[i],
				Area:       areas[i],
				InertiaMin: inertias[i][0],
			},
		}
		if i < len(partNames) {
			refs[i].Name = partNames[i]
		}
	}
	return refs, true
}
