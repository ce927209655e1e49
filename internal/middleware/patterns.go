package middleware

import (
	"regexp"
	"strings"
)

// Fixed detection pattern sets. Matching is detection-only at this layer;
// a hit raises an event but never blocks the request by itself.

var sqlInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\b(union|select|insert|update|delete|drop|alter|create|exec|execute)\b.*\b(from|into|table|database|where)\b)`),
	regexp.MustCompile(`(?i)('\s*(or|and)\s*'?\d*'?\s*=\s*'?\d*)`),
	regexp.MustCompile(`(?i)('\s*(or|and)\s*'[^']*'\s*=\s*')`),
	regexp.MustCompile(`(?i)(;\s*(drop|delete|truncate|update)\b)`),
	regexp.MustCompile(`(?i)(\b(sleep|benchmark|waitfor)\s*\()`),
	regexp.MustCompile(`(--|#|/\*)`),
}

var xssPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[^>]*>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
	regexp.MustCompile(`(?i)<iframe[^>]*>`),
	regexp.MustCompile(`(?i)<object[^>]*>`),
	regexp.MustCompile(`(?i)<embed[^>]*>`),
	regexp.MustCompile(`(?i)vbscript:`),
	regexp.MustCompile(`(?i)data:text/html`),
}

// Scanner and attack-tool signatures, matched against the user agent.
var scannerSignatures = []string{
	"sqlmap",
	"nikto",
	"nessus",
	"nmap",
	"masscan",
	"metasploit",
	"burpsuite",
	"burp collaborator",
	"acunetix",
	"dirbuster",
	"gobuster",
	"wpscan",
	"hydra",
	"zgrab",
	"python-requests",
	"curl/",
	"wget/",
}

// Known legitimate crawlers exempt from the scanner check.
var crawlerAllowlist = []string{
	"googlebot",
	"bingbot",
	"slurp",
	"duckduckbot",
	"baiduspider",
	"yandexbot",
	"facebookexternalhit",
	"applebot",
}

func matchesSQLInjection(raw string) bool {
	for _, re := range sqlInjectionPatterns {
		if re.MatchString(raw) {
			return true
		}
	}
	return false
}

func matchesXSS(raw string) bool {
	for _, re := range xssPatterns {
		if re.MatchString(raw) {
			return true
		}
	}
	return false
}

func matchesScannerUA(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	if ua == "" {
		return false
	}
	for _, crawler := range crawlerAllowlist {
		if strings.Contains(ua, crawler) {
			return false
		}
	}
	for _, sig := range scannerSignatures {
		if strings.Contains(ua, sig) {
			return true
		}
	}
	return false
}
