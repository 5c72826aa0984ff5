package enum

type ABTestStatus string

const (
	ABTestDraft     ABTestStatus = "draft"
	ABTestRunning   ABTestStatus = "running"
	ABTestCompleted ABTestStatus = "completed"
	ABTestFailed    ABTestStatus = "failed"
)

func (s ABTestStatus) String() string {
	return string(s)
}

type WinnerMetric string

const (
	WinnerMetricOpen  WinnerMetric = "open"
	WinnerMetricClick WinnerMetric = "click"
	WinnerMetricReply WinnerMetric = "reply"
)

func (m WinnerMetric) String() string {
	return string(m)
}

func (m WinnerMetric) IsValid() bool {
	return m == WinnerMetricOpen || m == WinnerMetricClick || m == WinnerMetricReply
}

type DistributionPolicy string

const (
	DistributionEqual    DistributionPolicy = "equal"
	DistributionWeighted DistributionPolicy = "weighted"
)

func (p DistributionPolicy) String() string {
	return string(p)
}
