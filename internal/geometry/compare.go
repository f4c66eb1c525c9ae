package geometry

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Properties is the scalar snapshot of one solid body compared against a
// question's stored reference.
type Properties struct {
	Mass       float64 `json:"mass"`
	Volume     float64 `json:"volume"`
	Area       float64 `json:"area"`
	InertiaMin float64 `json:"inertiaMin"` // smallest principal moment of inertia
}

// PartProperties is Properties plus the part name, used for multi-part
// comparison. The name never participates in matching, only in display.
type PartProperties struct {
	Properties
	Name string `json:"name"`
}

var fieldNames = [4]string{
	"Mass (kg)",
	"Volume (m^3)",
	"Surface Area (m^2)",
	"Principal Inertia Min (kg.m^2)",
}

// FieldResult is one row of a mismatch report. Reference and Submitted hold
// display-rounded values; the raw floats are not carried forward.
type FieldResult struct {
	Field     string `json:"field"`
	Reference string `json:"reference"`
	Submitted string `json:"submitted"`
	Pass      bool   `json:"pass"`
}

// MismatchReport is returned by CompareSingle when at least one field falls
// outside tolerance.
type MismatchReport struct {
	Fields []FieldResult `json:"fields"`
}

// PartRow pairs one reference part with one submitted part, in sorted
// mass order.
type PartRow struct {
	ReferenceName string        `json:"referenceName"`
	SubmittedName string        `json:"submittedName"`
	Fields        []FieldResult `json:"fields"`
	Pass          bool          `json:"pass"`
}

// PartialMatchReport is returned by CompareMultiPart when at least one
// position fails its 4-field check.
type PartialMatchReport struct {
	Matched int       `json:"matched"`
	Total   int       `json:"total"`
	Rows    []PartRow `json:"rows"`
}

func (r *PartialMatchReport) Summary() string {
	return fmt.Sprintf("You have modelled %d out of %d parts correctly.", r.Matched, r.Total)
}

func (p Properties) fields() [4]float64 {
	return [4]float64{p.Mass, p.Volume, p.Area, p.InertiaMin}
}

// withinTolerance reports whether sub lies in [ref*(1-tol), ref*(1+tol)],
// endpoints included.
func withinTolerance(ref, sub, tol float64) bool {
	return ref*(1-tol) <= sub && sub <= ref*(1+tol)
}

// displayPair formats a reference/submitted pair for a report row. The
// reference magnitude picks the format for both values: scientific notation
// with 2 decimals outside [0.1, 99], otherwise rounded to decimals places.
func displayPair(ref, sub float64, decimals int) (string, string) {
	if ref < 0.1 || ref > 99 {
		return fmt.Sprintf("%.2e", ref), fmt.Sprintf("%.2e", sub)
	}
	return roundFixed(ref, decimals), roundFixed(sub, decimals)
}

func roundFixed(v float64, decimals int) string {
	shift := math.Pow(10, float64(decimals))
	return strconv.FormatFloat(math.Round(v*shift)/shift, 'f', -1, 64)
}

// CompareSingle checks a single body's snapshot against the reference. A
// field passes when the submitted value lies within ref*(1±tol). Returns
// (true, nil) if all 4 fields pass, otherwise a per-field report rounded
// to 3 decimals.
func CompareSingle(ref, sub Properties, tol float64) (bool, *MismatchReport) {
	refFields := ref.fields()
	subFields := sub.fields()

	pass := true
	report := &MismatchReport{Fields: make([]FieldResult, 0, 4)}
	for i := range refFields {
		ok := withinTolerance(refFields[i], subFields[i], tol)
		if !ok {
			pass = false
		}
		refStr, subStr := displayPair(refFields[i], subFields[i], 3)
		report.Fields = append(report.Fields, FieldResult{
			Field:     fieldNames[i],
			Reference: refStr,
			Submitted: subStr,
			Pass:      ok,
		})
	}
	if pass {
		return true, nil
	}
	return false, report
}

// CompareMultiPart checks a same-length list of bodies against the reference
// parts. Both lists are sorted ascending by mass and compared positionally;
// this nearest-rank pairing is a heuristic that breaks down when two parts
// have near-identical mass, which question authors are told to avoid. The
// caller must have already verified the lengths match. Report values are
// rounded to 2 decimals.
func CompareMultiPart(ref, sub []PartProperties, tol float64) (bool, *PartialMatchReport) {
	refSorted := append([]PartProperties(nil), ref...)
	subSorted := append([]PartProperties(nil), sub...)
	sort.Slice(refSorted, func(i, j int) bool { return refSorted[i].Mass < refSorted[j].Mass })
	sort.Slice(subSorted, func(i, j int) bool { return subSorted[i].Mass < subSorted[j].Mass })

	matched := 0
	report := &PartialMatchReport{Total: len(refSorted), Rows: make([]PartRow, 0, len(refSorted))}
	for i := range refSorted {
		refFields := refSorted[i].fields()
		subFields := subSorted[i].fields()
		row := PartRow{
			ReferenceName: refSorted[i].Name,
			SubmittedName: subSorted[i].Name,
			Fields:        make([]FieldResult, 0, 4),
			Pass:          true,
		}
		for j := range refFields {
			ok := withinTolerance(refFields[j], subFields[j], tol)
			if !ok {
				row.Pass = false
			}
			refStr, subStr := displayPair(refFields[j], subFields[j], 2)
			row.Fields = append(row.Fields, FieldResult{
				Field:     fieldNames[j],
				Reference: refStr,
				Submitted: subStr,
				Pass:      ok,
			})
		}
		if row.Pass {
			matched++
		}
		report.Rows = append(report.Rows, row)
	}
	report.Matched = matched
	if matched == report.Total {
		return true, nil
	}
	return false, report
}

// CompareAssemblyInertia checks only the smallest principal inertia value of
// the whole assembly. Assemblies use an absolute-difference form with a much
// tighter default tolerance than part studios because mates pin the geometry
// and only numerical noise remains.
func CompareAssemblyInertia(ref, sub, tol float64) bool {
	return math.Abs(ref-sub) <= ref*tol
}
