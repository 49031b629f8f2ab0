/**
 * @description
 * This file implements the institutional insurance coverage calculator. Each
 * scheme identifier maps to a fixed coverage fraction of the bill total; the
 * fractions are configuration data so new schemes can be added without
 * touching the calculation itself.
 */

package domain

import "math"

// DefaultCoverageFraction applies to schemes not present in the table.
const DefaultCoverageFraction = 0.70

// SchemeTable maps scheme identifiers to coverage fractions (0..1].
type SchemeTable struct {
	fractions       map[string]float64
	defaultFraction float64
}

// NewSchemeTable builds a calculator from configured fractions. A
// non-positive or >1 fraction is dropped; a non-positive default falls back
// to DefaultCoverageFraction.
func NewSchemeTable(fractions map[string]float64, defaultFraction float64) *SchemeTable {
	clean := make(map[string]float64, len(fractions))
	for scheme, fraction := range fractions {
		if fraction > 0 && fraction <= 1 {
			clean[scheme] = fraction
		}
	}
	if defaultFraction <= 0 || defaultFraction > 1 {
		defaultFraction = DefaultCoverageFraction
	}
	return &SchemeTable{fractions: clean, defaultFraction: defaultFraction}
}

// DefaultSchemeTable returns the fractions observed for the institutional
// schemes the hospital participates in.
func DefaultSchemeTable() *SchemeTable {
	return NewSchemeTable(map[string]float64{
		"CGHS":     0.90,
		"ECHS":     0.85,
		"Railways": 0.80,
	}, DefaultCoverageFraction)
}

// Fraction returns the coverage fraction for a scheme.
func (t *SchemeTable) Fraction(scheme string) float64 {
	if fraction, ok := t.fractions[scheme]; ok {
		return fraction
	}
	return t.defaultFraction
}

// Coverage computes the amount (in paise) the scheme is expected to cover for
// a bill total. Deterministic: same inputs, same output.
func (t *SchemeTable) Coverage(totalAmount int64, scheme string) int64 {
	if totalAmount <= 0 {
		return 0
	}
	return int64(math.Round(float64(totalAmount) * t.Fraction(scheme)))
}

// PatientShare is the remainder the patient owes after expected coverage.
func (t *SchemeTable) PatientShare(totalAmount int64, scheme string) int64 {
	if totalAmount <= 0 {
		return 0
	}
	return totalAmount - t.Coverage(totalAmount, scheme)
}
