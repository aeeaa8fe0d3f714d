package health

import "regexp"

// redactions run in order; URLs go before paths since URLs contain paths.
var redactions = []struct {
	re   *regexp.Regexp
	with string
}{
	{regexp.MustCompile(`(?:https?|wss?|nats|tcp|mqtt)://[^\s]+`), "[URL]"},
	{regexp.MustCompile(`(?i)(?:password|token|secret|credential)[^a-zA-Z\s]*[:=][^,\s}]+`), "[REDACTED]"},
	{regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`), "[PATH]"},
	{regexp.MustCompile(`[A-Z]:\\[^:\s]+`), "[PATH]"},
	{regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`), "[IP]"},
	{regexp.MustCompile(`:\d{2,5}\b`), "[PORT]"},
}

// sanitize strips addresses, paths and credentials from an error message
// before it is served on /health.
func sanitize(msg string) string {
	for _, r := range redactions {
		msg = r.re.ReplaceAllString(msg, r.with)
	}
	return msg
}
