package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareSingleAllWithinTolerance(t *testing.T) {
	ref := Properties{Mass: 1.0, Volume: 0.5, Area: 2.0, InertiaMin: 0.1}
	sub := Properties{Mass: 1.002, Volume: 0.501, Area: 2.005, InertiaMin: 0.1001}

	pass, report := CompareSingle(ref, sub, 0.005)
	assert.True(t, pass)
	assert.Nil(t, report)
}

func TestCompareSingleBoundaryInclusive(t *testing.T) {
	ref := Properties{Mass: 1.0, Volume: 1.0, Area: 1.0, InertiaMin: 1.0}

	// exactly at ref*(1+tol) passes
	sub := Properties{Mass: 1.005, Volume: 1.005, Area: 1.005, InertiaMin: 1.005}
	pass, _ := CompareSingle(ref, sub, 0.005)
	assert.True(t, pass)

	// exactly at ref*(1-tol) passes
	sub = Properties{Mass: 0.995, Volume: 0.995, Area: 0.995, InertiaMin: 0.995}
	pass, _ = CompareSingle(ref, sub, 0.005)
	assert.True(t, pass)

	// just over fails
	sub = Properties{Mass: 1.0051, Volume: 1.0, Area: 1.0, InertiaMin: 1.0}
	pass, report := CompareSingle(ref, sub, 0.005)
	assert.False(t, pass)
	require.NotNil(t, report)
	require.Len(t, report.Fields, 4)
	assert.False(t, report.Fields[0].Pass)
	assert.True(t, report.Fields[1].Pass)
	assert.True(t, report.Fields[2].Pass)
	assert.True(t, report.Fields[3].Pass)
}

func TestCompareSingleReportFormatting(t *testing.T) {
	ref := Properties{Mass: 1.23456, Volume: 0.05, Area: 150.0, InertiaMin: 2.0}
	sub := Properties{Mass: 2.0, Volume: 0.06, Area: 100.0, InertiaMin: 2.0}

	pass, report := CompareSingle(ref, sub, 0.005)
	require.False(t, pass)
	require.NotNil(t, report)

	// in-range magnitude rounds to 3 decimals
	assert.Equal(t, "Mass (kg)", report.Fields[0].Field)
	assert.Equal(t, "1.235", report.Fields[0].Reference)
	assert.Equal(t, "2", report.Fields[0].Submitted)

	// below 0.1 uses scientific notation, reference magnitude decides both
	assert.Equal(t, "5.00e-02", report.Fields[1].Reference)
	assert.Equal(t, "6.00e-02", report.Fields[1].Submitted)

	// above 99 uses scientific notation
	assert.Equal(t, "1.50e+02", report.Fields[2].Reference)
	assert.Equal(t, "1.00e+02", report.Fields[2].Submitted)

	// passing field still appears in the report
	assert.True(t, report.Fields[3].Pass)
	assert.Equal(t, "2", report.Fields[3].Reference)
}

func TestCompareMultiPartSubmissionOrderIndependent(t *testing.T) {
	ref := []PartProperties{
		{Properties: Properties{Mass: 2, Volume: 1, Area: 4, InertiaMin: 0.2}, Name: "Base"},
		{Properties: Properties{Mass: 5, Volume: 2.5, Area: 9, InertiaMin: 0.5}, Name: "Arm"},
	}
	sub := []PartProperties{
		{Properties: Properties{Mass: 5.01, Volume: 2.51, Area: 9.01, InertiaMin: 0.5001}, Name: "Part 2"},
		{Properties: Properties{Mass: 1.99, Volume: 0.999, Area: 3.99, InertiaMin: 0.1999}, Name: "Part 1"},
	}

	pass, report := CompareMultiPart(ref, sub, 0.005)
	assert.True(t, pass)
	assert.Nil(t, report)

	// reversing the submitted list changes nothing
	pass, _ = CompareMultiPart(ref, []PartProperties{sub[1], sub[0]}, 0.005)
	assert.True(t, pass)
}

func TestCompareMultiPartPartialMatch(t *testing.T) {
	ref := []PartProperties{
		{Properties: Properties{Mass: 2, Volume: 1, Area: 4, InertiaMin: 0.2}, Name: "Base"},
		{Properties: Properties{Mass: 5, Volume: 2.5, Area: 9, InertiaMin: 0.5}, Name: "Arm"},
	}
	sub := []PartProperties{
		{Properties: Properties{Mass: 2.001, Volume: 1.001, Area: 4.001, InertiaMin: 0.2001}, Name: "Part 1"},
		{Properties: Properties{Mass: 5.5, Volume: 2.5, Area: 9, InertiaMin: 0.5}, Name: "Part 2"},
	}

	pass, report := CompareMultiPart(ref, sub, 0.005)
	assert.False(t, pass)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, "You have modelled 1 out of 2 parts correctly.", report.Summary())

	require.Len(t, report.Rows, 2)
	assert.True(t, report.Rows[0].Pass)
	assert.Equal(t, "Base", report.Rows[0].ReferenceName)
	assert.False(t, report.Rows[1].Pass)
	assert.Equal(t, "Arm", report.Rows[1].ReferenceName)
	assert.Equal(t, "Part 2", report.Rows[1].SubmittedName)
	assert.False(t, report.Rows[1].Fields[0].Pass)
	assert.True(t, report.Rows[1].Fields[1].Pass)
}

// The mass-sort pairing is positional, not assignment-optimal. When two
// reference parts have near-identical mass the pairing follows sort order
// even if swapping would match; this pins the current behavior.
func TestCompareMultiPartNearIdenticalMassPairsBySortOrder(t *testing.T) {
	ref := []PartProperties{
		{Properties: Properties{Mass: 1.000, Volume: 1, Area: 1, InertiaMin: 1}, Name: "A"},
		{Properties: Properties{Mass: 1.001, Volume: 5, Area: 5, InertiaMin: 5}, Name: "B"},
	}
	// submitted masses sort the other way round relative to their volumes
	sub := []PartProperties{
		{Properties: Properties{Mass: 1.0005, Volume: 5, Area: 5, InertiaMin: 5}, Name: "X"},
		{Properties: Properties{Mass: 1.0008, Volume: 1, Area: 1, InertiaMin: 1}, Name: "Y"},
	}

	pass, report := CompareMultiPart(ref, sub, 0.005)
	assert.False(t, pass)
	require.NotNil(t, report)
	// X (mass 1.0005) pairs with A positionally and fails on volume
	assert.Equal(t, "X", report.Rows[0].SubmittedName)
	assert.False(t, report.Rows[0].Pass)
}

func TestCompareAssemblyInertia(t *testing.T) {
	assert.True(t, CompareAssemblyInertia(10.0, 10.0000005, 1e-7))
	assert.False(t, CompareAssemblyInertia(10.0, 10.00002, 1e-7))
	assert.True(t, CompareAssemblyInertia(10.0, 10.0, 1e-7))
}
