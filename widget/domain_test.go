package widget

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDomain(t *testing.T) {
	cases := map[string]string{
		"example.com":                     "example.com",
		"EXAMPLE.com":                     "example.com",
		"www.example.com":                 "example.com",
		"https://example.com":             "example.com",
		"https://www.example.com/pricing": "example.com",
		"example.com:8080":                "example.com",
		"http://example.com:8080/a?b=c":   "example.com",
		"  example.com  ":                 "example.com",
		"":                                "",
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeDomain(raw), "input %q", raw)
	}
}

func TestDomainAllowed(t *testing.T) {
	assert.True(t, DomainAllowed("example.com", "example.com"))
	assert.True(t, DomainAllowed("example.com", "https://www.example.com"))

	// subdomain symmetry, both directions
	assert.True(t, DomainAllowed("shop.example.com", "example.com"))
	assert.True(t, DomainAllowed("example.com", "shop.example.com"))

	assert.False(t, DomainAllowed("example.com", "other.com"))
	assert.False(t, DomainAllowed("badexample.com", "example.com"))
	assert.False(t, DomainAllowed("example.com", ""))
	assert.False(t, DomainAllowed("", "example.com"))
}
