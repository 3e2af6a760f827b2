// Package clean holds the pure field-level cleaning functions applied
// to every incoming event before it becomes a warehouse row. All
// functions are total: bad input narrows to a safe default, it never
// errors.
package clean

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
)

// String strips control characters below 0x20 (tab, newline and CR are
// kept), truncates to max runes and trims surrounding whitespace.
func String(value string, max int) string {
	if value == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= 32 || r == '\t' || r == '\n' || r == '\r' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if runes := []rune(cleaned); len(runes) > max {
		cleaned = string(runes[:max])
	}
	return strings.TrimSpace(cleaned)
}

// IP accepts only dotted-quad IPv4 with octets in [0,255]; anything
// else (empty, IPv6, malformed) normalizes to "0.0.0.0". Lossy on
// purpose: no event is dropped for a bad IP.
func IP(ip string) string {
	if ip == "" || ip == "0.0.0.0" {
		return "0.0.0.0"
	}
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return "0.0.0.0"
	}
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 255 {
			return "0.0.0.0"
		}
	}
	return ip
}

// NormalizeURL prepends a scheme to scheme-less URLs: "https:" for
// protocol-relative "//..." and "https://" for bare hosts. Relative
// paths ("/...") and scheme-qualified URLs pass through untouched.
func NormalizeURL(u string) string {
	if u == "" || strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	if !strings.HasPrefix(u, "/") {
		return "https://" + u
	}
	return u
}

// Fingerprint derives a deterministic device-linking key from the
// user agent and IP. MD5 is fine here: this is an analytics
// correlation key, not a security primitive.
func Fingerprint(userAgent, ip string) string {
	if userAgent == "" && ip == "" {
		return ""
	}
	sum := md5.Sum([]byte(userAgent + ":" + ip))
	return hex.EncodeToString(sum[:])
}

var botIndicators = []string{
	"bot", "crawler", "spider", "scraper", "curl", "wget",
	"python-requests", "java/", "go-http-client",
}

// IsBot reports whether the user agent matches a known automation
// signature. Coarse filter; false negatives are expected.
func IsBot(userAgent string) bool {
	if userAgent == "" {
		return false
	}
	ua := strings.ToLower(userAgent)
	for _, indicator := range botIndicators {
		if strings.Contains(ua, indicator) {
			return true
		}
	}
	return false
}
