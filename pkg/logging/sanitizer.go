package logging

import (
	"regexp"
)

const (
	// MaxMessageLogLength is the maximum length of an engine error or prompt excerpt to log
	MaxMessageLogLength = 100
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Pattern to match JWT bearer tokens (three base64 segments separated by dots)
	jwtPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]*`)

	// Pattern to match opaque bearer tokens (catalog bot tokens, semantic layer secrets)
	bearerPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_.=]{16,}`)

	// Pattern to match API keys and tokens passed as parameters
	// Matches: api_key=xxx, apikey=xxx, token=xxx, access_token=xxx
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|access_token|token|key)=[A-Za-z0-9-_.]{12,}`)

	// Pattern to match provider secret keys (sk-..., sk-ant-...)
	secretKeyPattern = regexp.MustCompile(`sk-[A-Za-z0-9-_]{16,}`)

	// Pattern to match URL credentials (user:pass@host format)
	urlCredentialsPattern = regexp.MustCompile(`://[^:/\s]+:[^@/\s]+@`)
)

// SanitizeURL removes embedded credentials from a service URL.
// Use this before logging catalog, semantic layer or LLM endpoints.
func SanitizeURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	sanitized := urlCredentialsPattern.ReplaceAllString(rawURL, "://"+RedactedText+"@")
	return apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
}

// SanitizeError sanitizes error messages that might contain tokens or keys.
// Use this before logging any error returned by an upstream HTTP client.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeText(err.Error())
}

// SanitizeText applies every redaction pattern to free text.
func SanitizeText(text string) string {
	// JWTs first so the generic bearer pattern doesn't leave fragments
	sanitized := jwtPattern.ReplaceAllString(text, "Bearer "+RedactedText)
	sanitized = bearerPattern.ReplaceAllString(sanitized, "Bearer "+RedactedText)
	sanitized = secretKeyPattern.ReplaceAllString(sanitized, RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = urlCredentialsPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@")
	return sanitized
}

// SanitizeMessage truncates and sanitizes an engine error or LLM reply for logging.
func SanitizeMessage(message string) string {
	if message == "" {
		return ""
	}
	return TruncateString(SanitizeText(message), MaxMessageLogLength)
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
