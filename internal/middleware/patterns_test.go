package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesSQLInjection(t *testing.T) {
	hits := []string{
		"/products?id=1' OR '1'='1",
		"/search?q=UNION SELECT password FROM users",
		"/items?id=1; DROP TABLE orders",
		"/report?delay=sleep(5)",
		"/page?note=--",
	}
	for _, raw := range hits {
		assert.True(t, matchesSQLInjection(raw), "should match %q", raw)
	}

	misses := []string{
		"/products?id=42",
		"/search?q=blue+union+jack+flag",
		"/orders/select-address",
	}
	for _, raw := range misses {
		assert.False(t, matchesSQLInjection(raw), "should not match %q", raw)
	}
}

func TestMatchesXSS(t *testing.T) {
	hits := []string{
		"/comment?text=<script>alert(1)</script>",
		"/redirect?url=javascript:alert(1)",
		"/profile?bio=<img onerror=alert(1)>",
		"/embed?src=data:text/html,x",
	}
	for _, raw := range hits {
		assert.True(t, matchesXSS(raw), "should match %q", raw)
	}

	assert.False(t, matchesXSS("/articles?title=scripting+for+beginners"))
}

func TestMatchesScannerUA(t *testing.T) {
	assert.True(t, matchesScannerUA("sqlmap/1.7"))
	assert.True(t, matchesScannerUA("Mozilla/5.0 zgrab/0.x"))
	assert.True(t, matchesScannerUA("curl/8.4.0"))

	assert.False(t, matchesScannerUA(""))
	assert.False(t, matchesScannerUA("Mozilla/5.0 (Windows NT 10.0) Chrome/120.0"))
	// Legitimate crawlers are allowlisted even though some embed tool names.
	assert.False(t, matchesScannerUA("Mozilla/5.0 (compatible; Googlebot/2.1)"))
}
