package identity

import "net/url"

// redactProxy hides proxy credentials for logging.
func redactProxy(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.User == nil {
		return raw
	}
	return parsed.Redacted()
}
