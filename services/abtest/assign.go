package abtest

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/models"
)

// Bucket maps a recipient to 0-99 for a test. The same recipient always lands
// in the same bucket of the same test.
func Bucket(testID, recipient string) int {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s:%s", testID, strings.ToLower(strings.TrimSpace(recipient)))))
	return int(binary.BigEndian.Uint64(hash[:8]) % 100)
}

// Assign picks the variant for a recipient. Variants must be in position order.
func Assign(test *models.ABTest, recipient string) *models.ABTestVariant {
	n := len(test.Variants)
	if n == 0 {
		return nil
	}
	bucket := Bucket(test.ID, recipient)

	if test.Distribution != enum.DistributionWeighted {
		return &test.Variants[bucket*n/100]
	}

	cumulative := 0
	for i := range test.Variants {
		cumulative += test.Variants[i].Weight
		if bucket < cumulative {
			return &test.Variants[i]
		}
	}
	return &test.Variants[n-1]
}

// Winner returns the variant with the highest rate of the test's metric once
// every variant has reached the sample size. Ties go to the earliest created.
func Winner(test *models.ABTest) (*models.ABTestVariant, bool) {
	if len(test.Variants) == 0 {
		return nil, false
	}
	for i := range test.Variants {
		if test.Variants[i].SentCount < test.SampleSize {
			return nil, false
		}
	}

	ordered := make([]*models.ABTestVariant, len(test.Variants))
	for i := range test.Variants {
		ordered[i] = &test.Variants[i]
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].Position < ordered[j].Position
	})

	best := ordered[0]
	for _, v := range ordered[1:] {
		if v.Rate(test.WinnerMetric) > best.Rate(test.WinnerMetric) {
			best = v
		}
	}
	return best, true
}

// Rates is the winner metric rate per variant id.
func Rates(test *models.ABTest) map[string]float64 {
	out := make(map[string]float64, len(test.Variants))
	for i := range test.Variants {
		out[test.Variants[i].ID] = test.Variants[i].Rate(test.WinnerMetric)
	}
	return out
}

func counterColumn(eventType enum.DeliveryEventType) string {
	switch eventType {
	case enum.EventDelivered:
		return "delivered_count"
	case enum.EventOpen:
		return "open_count"
	case enum.EventClick:
		return "click_count"
	case enum.EventReply:
		return "reply_count"
	case enum.EventBounce:
		return "bounce_count"
	}
	return ""
}
