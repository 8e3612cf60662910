package config

import (
	"net/url"
	"regexp"
	"strings"
)

var keywordPassword = regexp.MustCompile(`(?i)(\bpassword\s*=\s*)('[^']*'|\S+)`)

// RedactURL replaces the password in a database connection string with "***".
// Both URL form and libpq keyword/value form are handled. Strings without a
// password are returned unchanged.
func RedactURL(raw string) string {
	if raw == "" {
		return ""
	}

	if !strings.Contains(raw, "://") {
		return keywordPassword.ReplaceAllString(raw, "${1}***")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	if u.User == nil {
		return raw
	}

	if _, hasPassword := u.User.Password(); !hasPassword {
		return raw
	}

	// Find the userinfo section between "://" and "@" in the raw string,
	// then replace the password portion (after "username:") with "***".
	schemeEnd := strings.Index(raw, "://")
	if schemeEnd < 0 {
		return raw
	}

	afterScheme := schemeEnd + len("://")

	atIdx := strings.Index(raw[afterScheme:], "@")
	if atIdx < 0 {
		return raw
	}

	userinfo := raw[afterScheme : afterScheme+atIdx]
	colonIdx := strings.Index(userinfo, ":")

	if colonIdx < 0 {
		return raw
	}

	redacted := raw[:afterScheme] + userinfo[:colonIdx+1] + "***" + raw[afterScheme+atIdx:]

	return redacted
}
