package enum

type DeliverabilityRating string

const (
	RatingExcellent DeliverabilityRating = "excellent"
	RatingGood      DeliverabilityRating = "good"
	RatingFair      DeliverabilityRating = "fair"
	RatingPoor      DeliverabilityRating = "poor"
	RatingCritical  DeliverabilityRating = "critical"
)

func (r DeliverabilityRating) String() string {
	return string(r)
}

// AtLeastAsBadAs reports whether r is the given rating or worse.
func (r DeliverabilityRating) AtLeastAsBadAs(other DeliverabilityRating) bool {
	return ratingRank[r] >= ratingRank[other]
}

var ratingRank = map[DeliverabilityRating]int{
	RatingExcellent: 0,
	RatingGood:      1,
	RatingFair:      2,
	RatingPoor:      3,
	RatingCritical:  4,
}
