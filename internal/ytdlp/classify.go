package ytdlp

import (
	"fmt"
	"regexp"
	"strings"
)

// Reason is the closed classification of a yt-dlp failure.
type Reason int

const (
	ReasonUnknown Reason = iota
	// ReasonBlocked covers bot checks, sign-in walls and 403/429 responses.
	ReasonBlocked
	// ReasonNotFound covers removed, private or otherwise absent items.
	ReasonNotFound
	// ReasonTimeout covers network timeouts, resets and 5xx responses.
	ReasonTimeout
)

func (r Reason) String() string {
	switch r {
	case ReasonBlocked:
		return "blocked"
	case ReasonNotFound:
		return "not_found"
	case ReasonTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is returned for every failed yt-dlp invocation.
type Error struct {
	Reason   Reason
	ExitCode int
	Detail   string
	Lines    []string
	err      error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("yt-dlp failed (%s)", e.Reason)
	}
	return fmt.Sprintf("yt-dlp failed (%s): %s", e.Reason, e.Detail)
}

func (e *Error) Unwrap() error { return e.err }

var (
	blockedPatterns = []string{
		"sign in to confirm you",
		"sign in to confirm your age",
		"confirm you're not a bot",
		"http error 403",
		"http error 429",
		"too many requests",
		"members-only content",
		"available to this channel's members",
		"login required",
		"use --cookies",
	}
	notFoundPatterns = []string{
		"video unavailable",
		"this video has been removed",
		"this video is private",
		"private video",
		"http error 404",
		"http error 410",
		"does not exist",
		"account associated with this video has been terminated",
		"this live event will begin",
	}
	timeoutPatterns = []string{
		"timed out",
		"connection reset",
		"connection refused",
		"temporary failure in name resolution",
		"unable to download webpage",
		"remote end closed connection",
		"incompleteread",
	}
	// Rate-limit notices reuse "video unavailable" wording; they are checked first.
	rateLimitPatterns = []string{
		"try again later",
		"rate-limited",
		"rate limited",
	}
	serverErrorRE = regexp.MustCompile(`http error 5\d\d`)
)

// Classify maps yt-dlp error lines to a Reason. ERROR lines are weighed
// before any other output; within a group the first matching category in
// the order rate-limit, not-found, blocked, timeout wins.
func Classify(lines []string) Reason {
	var errorLines, other []string
	for _, line := range lines {
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "error:") {
			errorLines = append(errorLines, lower)
		} else {
			other = append(other, lower)
		}
	}
	for _, group := range [][]string{errorLines, other} {
		if r := classifyGroup(group); r != ReasonUnknown {
			return r
		}
	}
	return ReasonUnknown
}

func classifyGroup(lines []string) Reason {
	for _, line := range lines {
		if containsAny(line, rateLimitPatterns) {
			return ReasonBlocked
		}
	}
	for _, line := range lines {
		if containsAny(line, notFoundPatterns) {
			return ReasonNotFound
		}
	}
	for _, line := range lines {
		if containsAny(line, blockedPatterns) {
			return ReasonBlocked
		}
	}
	for _, line := range lines {
		if containsAny(line, timeoutPatterns) || serverErrorRE.MatchString(line) {
			return ReasonTimeout
		}
	}
	return ReasonUnknown
}

func containsAny(line string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(line, p) {
			return true
		}
	}
	return false
}

func lastError(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.HasPrefix(strings.ToLower(lines[i]), "error:") {
			return lines[i]
		}
	}
	if len(lines) > 0 {
		return lines[len(lines)-1]
	}
	return ""
}
