package audio

import "math"

// EqualPower returns the gains for the two sides of a crossfade at
// position p (0 = all A, 1 = all B). gainA² + gainB² = 1 for every p, so
// perceived loudness holds through the sweep. p is clamped to [0,1].
func EqualPower(p float64) (gainA, gainB float64) {
	p = math.Max(0, math.Min(1, p))
	return math.Cos(p * math.Pi / 2), math.Cos((1 - p) * math.Pi / 2)
}

// DBToGain converts decibels to a linear amplitude factor.
func DBToGain(db float64) float64 {
	return math.Pow(10, db/20)
}

// GainToDB converts a linear amplitude to decibels. Zero and negative
// amplitudes are floored at 1e-4 (-80 dB).
func GainToDB(g float64) float64 {
	if g <= 0 {
		g = 0.0001
	}
	return 20 * math.Log10(g)
}
