package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "jane@example.com", NormalizeEmail("  Jane@Example.COM "))
	assert.Equal(t, "jane@example.com", NormalizeEmail("Jane Doe <jane@example.com>"))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestExtractDomainFromEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"user@Example.com", "example.com"},
		{"Name <user@mail.example.org>", "mail.example.org"},
		{"no-at-sign", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractDomainFromEmail(tt.in), tt.in)
	}
}

func TestParseEmailDomain(t *testing.T) {
	email, domain, err := ParseEmailDomain("Sales@Acme.io")
	require.NoError(t, err)
	assert.Equal(t, "sales@acme.io", email)
	assert.Equal(t, "acme.io", domain)

	_, _, err = ParseEmailDomain("")
	assert.Error(t, err)

	_, _, err = ParseEmailDomain("not an email")
	assert.Error(t, err)
}

func TestNormalizeDomain(t *testing.T) {
	d, err := NormalizeDomain(" Example.COM. ")
	require.NoError(t, err)
	assert.Equal(t, "example.com", d)

	_, err = NormalizeDomain("")
	assert.Error(t, err)

	_, err = NormalizeDomain("user@example.com")
	assert.Error(t, err)
}

func TestGenerateMessageID(t *testing.T) {
	a := GenerateMessageID("example.com", "meta")
	b := GenerateMessageID("example.com", "meta")
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^<\d+\.[a-z0-9]{12}\.[0-9a-f]{8}@example\.com>$`, a)
	assert.Equal(t, a[1:len(a)-1], NormalizeMessageID(a))
}

func TestUsageWindowKeys(t *testing.T) {
	ts := Now()
	assert.Len(t, DayKey(ts), 10)
	assert.Len(t, HourKey(ts), 13)
	assert.Equal(t, DayKey(ts), HourKey(ts)[:10])
}
