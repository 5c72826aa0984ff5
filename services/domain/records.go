package domain

import (
	"fmt"
	"strings"

	"github.com/customeros/mailgovernor/config"
	"github.com/customeros/mailgovernor/internal/enum"
)

// Recommendations are the records a domain should publish.
type Recommendations struct {
	SPF   string
	DKIM  string
	DMARC string
}

func Recommend(domain string, cfg *config.DNSConfig) Recommendations {
	var spf strings.Builder
	spf.WriteString("v=spf1")
	for _, include := range cfg.SPFIncludes {
		if include = strings.TrimSpace(include); include != "" {
			spf.WriteString(" include:" + include)
		}
	}
	spf.WriteString(" ~all")

	dmarc := "v=DMARC1; p=" + cfg.DMARCPolicy
	reportTo := cfg.DMARCReportTo
	if reportTo == "" {
		reportTo = "dmarc@" + domain
	}
	dmarc += "; rua=mailto:" + reportTo

	return Recommendations{
		SPF:   spf.String(),
		DKIM:  "v=DKIM1; k=rsa; p=<public key from your mail provider>",
		DMARC: dmarc,
	}
}

// Evaluation is the settled state of one record type after a lookup.
type Evaluation struct {
	Type        enum.DNSRecordType
	Status      enum.VerificationStatus
	Current     string
	Recommended string
	Selector    string
	Err         error
}

// tags parses "k=v; k=v" records. Keys are lowercased.
func tags(record string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(record, ";") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// EvaluateSPF accepts exactly one v=spf1 record that includes every configured
// sender and ends with an all mechanism.
func EvaluateSPF(records []string, cfg *config.DNSConfig) (enum.VerificationStatus, string) {
	var spf []string
	for _, r := range records {
		r = strings.TrimSpace(r)
		if hasPrefixFold(r, "v=spf1") {
			spf = append(spf, r)
		}
	}
	switch len(spf) {
	case 0:
		return enum.VerificationInvalid, ""
	case 1:
	default:
		// more than one SPF record is a permerror for receivers
		return enum.VerificationInvalid, strings.Join(spf, " | ")
	}

	record := spf[0]
	terms := strings.Fields(strings.ToLower(record))
	present := map[string]bool{}
	for _, t := range terms {
		present[strings.TrimLeft(t, "+")] = true
	}
	for _, include := range cfg.SPFIncludes {
		include = strings.ToLower(strings.TrimSpace(include))
		if include != "" && !present["include:"+include] {
			return enum.VerificationInvalid, record
		}
	}
	last := terms[len(terms)-1]
	if !strings.HasSuffix(last, "all") || last == "+all" || last == "all" {
		return enum.VerificationInvalid, record
	}
	return enum.VerificationValid, record
}

// EvaluateDKIM accepts a v=DKIM1 record with a non-empty public key. An empty
// p= is a revoked key.
func EvaluateDKIM(records []string) (enum.VerificationStatus, string) {
	var candidate string
	for _, r := range records {
		r = strings.TrimSpace(r)
		t := tags(r)
		if v, ok := t["v"]; ok && !strings.EqualFold(v, "DKIM1") {
			continue
		}
		if _, ok := t["p"]; !ok {
			continue
		}
		if t["p"] != "" {
			return enum.VerificationValid, r
		}
		candidate = r
	}
	return enum.VerificationInvalid, candidate
}

// EvaluateDMARC accepts one v=DMARC1 record carrying a known policy.
func EvaluateDMARC(records []string) (enum.VerificationStatus, string) {
	for _, r := range records {
		r = strings.TrimSpace(r)
		if !hasPrefixFold(r, "v=DMARC1") {
			continue
		}
		switch strings.ToLower(tags(r)["p"]) {
		case "none", "quarantine", "reject":
			return enum.VerificationValid, r
		}
		return enum.VerificationInvalid, r
	}
	return enum.VerificationInvalid, ""
}

func dkimHost(selector, domain string) string {
	return fmt.Sprintf("%s._domainkey.%s", selector, domain)
}

func dmarcHost(domain string) string {
	return "_dmarc." + domain
}
