package logger

import "strings"

// SanitizedEmail masks an email address for logging (e.g., "u***@e***.com").
// Identities are emails here, so every audit line goes through this.
func SanitizedEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "[invalid-email]"
	}

	username := email[:at]
	domain := email[at+1:]

	if len(username) > 1 {
		username = string(username[0]) + strings.Repeat("*", len(username)-1)
	}

	// Keep the TLD visible, mask everything before it
	if dot := strings.LastIndex(domain, "."); dot > 0 {
		masked := make([]string, 0, 2)
		for _, part := range strings.Split(domain[:dot], ".") {
			masked = append(masked, strings.Repeat("*", len(part)))
		}
		domain = strings.Join(masked, ".") + domain[dot:]
	}

	return username + "@" + domain
}

// SanitizeQueryString reports whether a query string carries sensitive
// parameters and should be redacted wholesale from request logs
func SanitizeQueryString(rawQuery string) bool {
	sensitive := []string{"password", "token", "secret", "session", "captcha", "email", "identity", "auth"}

	query := strings.ToLower(rawQuery)
	for _, param := range sensitive {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
