package log

import (
	"strings"
)

var sensitiveKeywords = []string{
	"password", "passwd", "pwd",
	"api_key", "apikey", "api-key",
	"token", "secret", "authorization",
	"credential", "private_key",
}

// SanitizeField masks values whose key looks sensitive.
// Phone numbers keep their first 4 digits, emails their first 3 characters.
func SanitizeField(key, value string) string {
	if value == "" {
		return value
	}

	lowerKey := strings.ToLower(key)

	switch {
	case strings.Contains(lowerKey, "phone") || strings.Contains(lowerKey, "mobile"):
		return MaskPhone(value)
	case strings.Contains(lowerKey, "email"):
		return sanitizeEmail(value)
	}

	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lowerKey, keyword) {
			return sanitizeToken(value)
		}
	}

	return value
}

// MaskPhone keeps the first four characters, e.g. 9876****.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone + "****"
	}
	return phone[:4] + "****"
}

// sanitizeToken shows only the first and last 4 characters of long values
func sanitizeToken(value string) string {
	if len(value) <= 8 {
		if len(value) <= 2 {
			return strings.Repeat("*", len(value))
		}
		return string(value[0]) + strings.Repeat("*", len(value)-2) + string(value[len(value)-1])
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

func sanitizeEmail(value string) string {
	local, domain, ok := strings.Cut(value, "@")
	if !ok {
		return strings.Repeat("*", len(value))
	}
	if len(local) <= 3 {
		if local == "" {
			return "@" + domain
		}
		return local[:1] + strings.Repeat("*", len(local)-1) + "@" + domain
	}
	return local[:3] + "***@" + domain
}
