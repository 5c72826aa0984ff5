package enum

type VerificationStatus string

const (
	VerificationNotChecked VerificationStatus = "not_checked"
	VerificationPending    VerificationStatus = "pending"
	VerificationValid      VerificationStatus = "valid"
	VerificationInvalid    VerificationStatus = "invalid"
	VerificationFailed     VerificationStatus = "failed"
)

func (s VerificationStatus) String() string {
	return string(s)
}

func (s VerificationStatus) IsTerminal() bool {
	return s == VerificationValid || s == VerificationInvalid || s == VerificationFailed
}

// CanTransition reports whether a record may move from one status to another.
// Every attempt starts by entering pending, and only pending may settle.
func CanTransition(from, to VerificationStatus) bool {
	switch to {
	case VerificationPending:
		return from == VerificationNotChecked || from == VerificationPending || from.IsTerminal()
	case VerificationValid, VerificationInvalid, VerificationFailed:
		return from == VerificationPending
	}
	return false
}

type DNSRecordType string

const (
	RecordSPF   DNSRecordType = "spf"
	RecordDKIM  DNSRecordType = "dkim"
	RecordDMARC DNSRecordType = "dmarc"
)

func (t DNSRecordType) String() string {
	return string(t)
}

var AllDNSRecordTypes = []DNSRecordType{RecordSPF, RecordDKIM, RecordDMARC}
