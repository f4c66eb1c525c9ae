package onshape

import (
	"encoding/json"
	"time"
)

// AllBodiesKey indexes the grouped entry of a mass-properties response when
// massAsGroup is requested.
const AllBodiesKey = "-all-"

// BodyProperties is one body's entry of a mass-properties response. The API
// reports each scalar as a 3-element [value, minBound, maxBound] slice; only
// index 0 is meaningful here.
type BodyProperties struct {
	Mass             []float64 `json:"mass"`
	Volume           []float64 `json:"volume"`
	Periphery        []float64 `json:"periphery"`
	PrincipalInertia []float64 `json:"principalInertia"`
	HasMass          bool      `json:"hasMass"`
}

// MassProperties is the massproperties response of either a part studio
// (per-body map) or an assembly (top-level principal inertia).
type MassProperties struct {
	Bodies           map[string]BodyProperties `json:"bodies"`
	PrincipalInertia []float64                 `json:"principalInertia"`
}

// AllBodies returns the grouped "-all-" entry of a part studio response.
func (m *MassProperties) AllBodies() (BodyProperties, bool) {
	b, ok := m.Bodies[AllBodiesKey]
	return b, ok
}

type Feature struct {
	FeatureID   string `json:"featureId"`
	Name        string `json:"name"`
	FeatureType string `json:"featureType"`
}

// FeatureList is a part studio's feature list. Raw keeps the untouched
// response body for telemetry storage.
type FeatureList struct {
	Features []Feature       `json:"features"`
	Raw      json.RawMessage `json:"-"`
}

// HasDerivedImport reports whether any feature is an importDerived feature,
// excluding the one with the given feature ID (the app's own initiation
// insert, empty when none applies).
func (f *FeatureList) HasDerivedImport(allowedFeatureID string) bool {
	for _, fea := range f.Features {
		if fea.FeatureType == "importDerived" && fea.FeatureID != allowedFeatureID {
			return true
		}
	}
	return false
}

type AssemblyInstance struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type SubAssembly struct {
	Instances []AssemblyInstance `json:"instances"`
	Features  []json.RawMessage  `json:"features"`
}

// AssemblyDefinition is the assembly definition response with part instances
// and mate features. Raw keeps the untouched response body for telemetry.
type AssemblyDefinition struct {
	RootAssembly  SubAssembly     `json:"rootAssembly"`
	SubAssemblies []SubAssembly   `json:"subAssemblies"`
	Raw           json.RawMessage `json:"-"`
}

// MateFeatureCount counts mate features across the root assembly and all
// subassemblies.
func (a *AssemblyDefinition) MateFeatureCount() int {
	count := len(a.RootAssembly.Features)
	for _, sub := range a.SubAssemblies {
		count += len(sub.Features)
	}
	return count
}

// InstanceIDs collects instance IDs across the root assembly and all
// subassemblies.
func (a *AssemblyDefinition) InstanceIDs() []string {
	ids := make([]string, 0, len(a.RootAssembly.Instances))
	for _, ins := range a.RootAssembly.Instances {
		ids = append(ids, ins.ID)
	}
	for _, sub := range a.SubAssemblies {
		for _, ins := range sub.Instances {
			ids = append(ids, ins.ID)
		}
	}
	return ids
}

type Part struct {
	PartID string `json:"partId"`
	Name   string `json:"name"`
}

type Element struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ElementType    string `json:"elementType"`
	MicroversionID string `json:"microversionId"`
}

// DocumentHistoryEntry is one microversion of a document history page.
// Username is stripped before telemetry storage.
type DocumentHistoryEntry struct {
	MicroversionID     string `json:"microversionId"`
	NextMicroversionID string `json:"nextMicroversionId"`
	Username           string `json:"username,omitempty"`
	Date               string `json:"date,omitempty"`
	Description        string `json:"description,omitempty"`
}

type SessionInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Token is an OAuth credential pair returned by the token endpoint.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}
