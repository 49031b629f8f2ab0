package domain

import "testing"

func TestCoverage_KnownSchemesAndDefault(t *testing.T) {
	table := DefaultSchemeTable()

	cases := []struct {
		scheme   string
		expected int64
	}{
		{"CGHS", 90000},
		{"ECHS", 85000},
		{"Railways", 80000},
		{"PrivateCorp", 70000}, // unknown scheme falls back to the default fraction
	}
	for _, tc := range cases {
		if got := table.Coverage(100000, tc.scheme); got != tc.expected {
			t.Fatalf("scheme %s: expected coverage %d, got %d", tc.scheme, tc.expected, got)
		}
	}
}

func TestCoverage_RoundsToNearestPaisa(t *testing.T) {
	table := DefaultSchemeTable()

	// 0.85 * 333 = 283.05 -> 283
	if got := table.Coverage(333, "ECHS"); got != 283 {
		t.Fatalf("expected 283, got %d", got)
	}
	// 0.90 * 335 = 301.5 -> 302
	if got := table.Coverage(335, "CGHS"); got != 302 {
		t.Fatalf("expected 302, got %d", got)
	}
}

func TestCoverage_NonPositiveTotalIsZero(t *testing.T) {
	table := DefaultSchemeTable()
	if got := table.Coverage(0, "CGHS"); got != 0 {
		t.Fatalf("expected zero coverage for zero total, got %d", got)
	}
	if got := table.Coverage(-100, "CGHS"); got != 0 {
		t.Fatalf("expected zero coverage for negative total, got %d", got)
	}
}

func TestPatientShare_ComplementsCoverage(t *testing.T) {
	table := DefaultSchemeTable()

	total := int64(123457)
	for _, scheme := range []string{"CGHS", "ECHS", "Railways", "unknown"} {
		covered := table.Coverage(total, scheme)
		share := table.PatientShare(total, scheme)
		if covered+share != total {
			t.Fatalf("scheme %s: coverage %d + share %d != total %d", scheme, covered, share, total)
		}
	}
}

func TestNewSchemeTable_DropsInvalidFractions(t *testing.T) {
	table := NewSchemeTable(map[string]float64{
		"CGHS":   0.90,
		"Broken": 1.7,
		"Zero":   0,
	}, 0.60)

	if got := table.Fraction("CGHS"); got != 0.90 {
		t.Fatalf("expected 0.90, got %f", got)
	}
	if got := table.Fraction("Broken"); got != 0.60 {
		t.Fatalf("expected invalid fraction to fall back to default, got %f", got)
	}
	if got := table.Fraction("Zero"); got != 0.60 {
		t.Fatalf("expected zero fraction to fall back to default, got %f", got)
	}
}

func TestNewSchemeTable_BadDefaultFallsBack(t *testing.T) {
	table := NewSchemeTable(nil, 1.5)
	if got := table.Fraction("anything"); got != DefaultCoverageFraction {
		t.Fatalf("expected %f, got %f", DefaultCoverageFraction, got)
	}
}
