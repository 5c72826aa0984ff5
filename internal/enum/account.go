package enum

type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusPaused    AccountStatus = "paused"
	AccountStatusSuspended AccountStatus = "suspended"
)

func (s AccountStatus) String() string {
	return string(s)
}

func (s AccountStatus) IsValid() bool {
	switch s {
	case AccountStatusActive, AccountStatusPaused, AccountStatusSuspended:
		return true
	}
	return false
}

type EmailProvider string

const (
	EmailGoogleWorkspace EmailProvider = "google_workspace"
	EmailOutlook         EmailProvider = "outlook"
	EmailSendgrid        EmailProvider = "sendgrid"
	EmailSMTP            EmailProvider = "smtp"
)

func (t EmailProvider) String() string {
	return string(t)
}

func (t EmailProvider) IsValid() bool {
	switch t {
	case EmailGoogleWorkspace, EmailOutlook, EmailSendgrid, EmailSMTP:
		return true
	}
	return false
}

type WarmupState string

const (
	WarmupNotStarted WarmupState = "not_started"
	WarmupWarming    WarmupState = "warming"
	WarmupComplete   WarmupState = "complete"
)

func (s WarmupState) String() string {
	return string(s)
}

type HealthStatus string

const (
	HealthExcellent HealthStatus = "excellent"
	HealthGood      HealthStatus = "good"
	HealthFair      HealthStatus = "fair"
	HealthPoor      HealthStatus = "poor"
	HealthCritical  HealthStatus = "critical"
)

func (s HealthStatus) String() string {
	return string(s)
}

// HealthStatusForScore maps a 0-100 score onto its band.
func HealthStatusForScore(score int) HealthStatus {
	switch {
	case score >= 90:
		return HealthExcellent
	case score >= 75:
		return HealthGood
	case score >= 60:
		return HealthFair
	case score >= 40:
		return HealthPoor
	default:
		return HealthCritical
	}
}

type EmailSecurity string

const (
	EmailSecurityNone     EmailSecurity = "none"
	EmailSecuritySSL      EmailSecurity = "ssl"
	EmailSecurityTLS      EmailSecurity = "tls"
	EmailSecurityStartTLS EmailSecurity = "startTLS"
)

func (t EmailSecurity) String() string {
	return string(t)
}
