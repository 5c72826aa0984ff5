package enum

type AlertType string

const (
	AlertHighBounceRate    AlertType = "high_bounce_rate"
	AlertHighComplaintRate AlertType = "high_complaint_rate"
	AlertLowHealthScore    AlertType = "low_health_score"
	AlertBlacklisted       AlertType = "blacklisted"
)

func (t AlertType) String() string {
	return string(t)
}

type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

func (s AlertSeverity) String() string {
	return string(s)
}
