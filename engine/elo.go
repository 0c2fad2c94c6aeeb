package engine

import "math"

const (
	eloK = 32
	// RatingFloor is the lowest rating an agent can fall to.
	RatingFloor = 100
)

// EloExpect returns the expected score of a rated ratingA player against
// ratingB.
func EloExpect(ratingA, ratingB int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(ratingB-ratingA)/400.0))
}

// EloDeltas computes the rating changes for both players given player A's
// actual score (1 win, 0.5 draw, 0 loss).
func EloDeltas(ratingA, ratingB int, scoreA float64) (dA, dB int) {
	ea := EloExpect(ratingA, ratingB)
	eb := 1.0 - ea
	scoreB := 1.0 - scoreA
	dA = int(math.Round(eloK * (scoreA - ea)))
	dB = int(math.Round(eloK * (scoreB - eb)))
	return dA, dB
}

// ClampRating applies the rating floor after a delta.
func ClampRating(rating int) int {
	if rating < RatingFloor {
		return RatingFloor
	}
	return rating
}
