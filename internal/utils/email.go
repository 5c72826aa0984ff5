package utils

import (
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/pkg/errors"
	"golang.org/x/net/publicsuffix"
)

// NormalizeEmail trims, strips a display name and lowercases the address.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)

	// "Name <email@domain.com>"
	if strings.Contains(email, "<") && strings.Contains(email, ">") {
		startIdx := strings.LastIndex(email, "<") + 1
		endIdx := strings.LastIndex(email, ">")
		if startIdx > 0 && endIdx > startIdx {
			email = email[startIdx:endIdx]
		}
	}

	return strings.ToLower(strings.TrimSpace(email))
}

func ExtractDomainFromEmail(email string) string {
	email = NormalizeEmail(email)
	if email == "" {
		return ""
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// ParseEmailDomain validates the address syntax and returns the normalized address and its domain.
func ParseEmailDomain(email string) (string, string, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return "", "", errors.New("email is empty")
	}

	validation := mailvalidate.ValidateEmailSyntax(normalized)
	if !validation.IsValid {
		return "", "", errors.Errorf("invalid email address: %s", email)
	}

	domain := strings.ToLower(validation.Domain)
	if domain == "" {
		domain = ExtractDomainFromEmail(normalized)
	}
	return normalized, domain, nil
}

// NormalizeDomain lowercases the domain and checks it has a registrable public suffix.
func NormalizeDomain(domain string) (string, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	domain = strings.TrimSuffix(domain, ".")
	if domain == "" {
		return "", errors.New("domain is empty")
	}
	if strings.ContainsAny(domain, " @/") {
		return "", errors.Errorf("invalid domain: %s", domain)
	}

	if _, err := publicsuffix.EffectiveTLDPlusOne(domain); err != nil {
		return "", errors.Wrapf(err, "invalid domain: %s", domain)
	}
	return domain, nil
}
