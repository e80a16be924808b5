package logs

import (
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

const redacted = "[REDACTED]"

// minRegisteredLength keeps short values from redacting unrelated text.
const minRegisteredLength = 8

// SecretSanitizer wraps a zapcore.Core to sanitize sensitive values from logs
type SecretSanitizer struct {
	zapcore.Core
	patterns []*secretPattern
	// registered holds exact values to redact, shared with child cores.
	registered *sync.Map
}

type secretPattern struct {
	name     string
	regex    *regexp.Regexp
	maskFunc func(string) string
}

// NewSecretSanitizer creates a new sanitizing core that wraps the provided core
func NewSecretSanitizer(core zapcore.Core) *SecretSanitizer {
	return &SecretSanitizer{
		Core:       core,
		patterns:   defaultPatterns(),
		registered: &sync.Map{},
	}
}

func defaultPatterns() []*secretPattern {
	return []*secretPattern{
		{
			name:  "bearer_token",
			regex: regexp.MustCompile(`\b(Bearer\s+[A-Za-z0-9\-\._~\+\/]+=*)`),
			maskFunc: func(token string) string {
				parts := strings.SplitN(token, " ", 2)
				if len(parts) != 2 || len(parts[1]) <= 4 {
					return "Bearer ****"
				}
				return "Bearer " + parts[1][:4] + "***"
			},
		},
		{
			name:  "jwt",
			regex: regexp.MustCompile(`\beyJ[A-Za-z0-9\-_]+\.eyJ[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+`),
			maskFunc: func(jwt string) string {
				return jwt[:strings.Index(jwt, ".")] + ".***"
			},
		},
		{
			// Vault service and batch tokens.
			name:     "vault_token",
			regex:    regexp.MustCompile(`\bhv[sb]\.[A-Za-z0-9_\-]{20,}`),
			maskFunc: func(tok string) string { return tok[:4] + "****" },
		},
		{
			// Form and query parameters that carry credentials.
			name:  "credential_param",
			regex: regexp.MustCompile(`(?i)\b(password|client_secret|refresh_token|access_token|id_token)=([^&\s"]+)`),
			maskFunc: func(match string) string {
				return match[:strings.Index(match, "=")+1] + "****"
			},
		},
	}
}

// RegisterSecret adds a value that must never reach a log output, such as
// a freshly installed client secret or a resolved admin password.
func (s *SecretSanitizer) RegisterSecret(value string) {
	if len(value) < minRegisteredLength {
		return
	}
	s.registered.Store(value, struct{}{})
}

// UnregisterSecret stops redacting a value, e.g. after it was rotated out.
func (s *SecretSanitizer) UnregisterSecret(value string) {
	s.registered.Delete(value)
}

// Sanitize applies registered values and patterns to str.
func (s *SecretSanitizer) Sanitize(str string) string {
	result := str

	s.registered.Range(func(key, _ any) bool {
		if v, ok := key.(string); ok {
			result = strings.ReplaceAll(result, v, redacted)
		}
		return true
	})

	for _, pattern := range s.patterns {
		result = pattern.regex.ReplaceAllStringFunc(result, pattern.maskFunc)
	}

	return result
}

// Write sanitizes the entry before writing
func (s *SecretSanitizer) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	entry.Message = s.Sanitize(entry.Message)
	return s.Core.Write(entry, s.sanitizeFields(fields))
}

func (s *SecretSanitizer) sanitizeFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, field := range fields {
		out[i] = s.sanitizeField(field)
	}
	return out
}

func (s *SecretSanitizer) sanitizeField(field zapcore.Field) zapcore.Field {
	switch field.Type {
	case zapcore.StringType:
		field.String = s.Sanitize(field.String)
	case zapcore.ByteStringType:
		if b, ok := field.Interface.([]byte); ok {
			field.Interface = []byte(s.Sanitize(string(b)))
		}
	case zapcore.ErrorType:
		if err, ok := field.Interface.(error); ok {
			original := err.Error()
			if sanitized := s.Sanitize(original); sanitized != original {
				field = zapcore.Field{Key: field.Key, Type: zapcore.StringType, String: sanitized}
			}
		}
	case zapcore.StringerType, zapcore.ReflectType:
		if stringer, ok := field.Interface.(interface{ String() string }); ok {
			original := stringer.String()
			if sanitized := s.Sanitize(original); sanitized != original {
				field = zapcore.Field{Key: field.Key, Type: zapcore.StringType, String: sanitized}
			}
		}
	}
	return field
}

// With creates a sanitizing child core
func (s *SecretSanitizer) With(fields []zapcore.Field) zapcore.Core {
	return &SecretSanitizer{
		Core:       s.Core.With(s.sanitizeFields(fields)),
		patterns:   s.patterns,
		registered: s.registered,
	}
}

// Check delegates to the wrapped core
func (s *SecretSanitizer) Check(entry zapcore.Entry, checkedEntry *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if s.Enabled(entry.Level) {
		return checkedEntry.AddCore(entry, s)
	}
	return checkedEntry
}
