package acquisition

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"ferry/internal/catalog"
	"ferry/internal/services"
	"ferry/internal/transport"
)

// Artifact is a downloaded, validated and normalized payload.
type Artifact struct {
	Path            string
	ByteSize        int64
	Width           int
	Height          int
	DurationSeconds float64
	Kind            catalog.Kind
	Title           string
	Description     string
	Tags            []string
	Strategy        string
	Attempts        []transport.Attempt
}

// ErrAcquisitionExhausted matches every *ExhaustedError.
var ErrAcquisitionExhausted = errors.New("acquisition exhausted")

// ExhaustedError reports that no strategy produced a valid artifact.
type ExhaustedError struct {
	ItemID string
	// Permanent is set when every strategy that could run reported NotFound.
	Permanent bool
	Attempts  []transport.Attempt
	// Last is the final attempt's error.
	Last error
}

func (e *ExhaustedError) Error() string {
	class := "transient"
	if e.Permanent {
		class = "permanent"
	}
	msg := fmt.Sprintf("acquisition exhausted for %s after %d attempts (%s)", e.ItemID, len(e.Attempts), class)
	if e.Last != nil {
		msg += ": " + e.Last.Error()
	}
	return msg
}

// Is matches ErrAcquisitionExhausted and the service marker for its class.
func (e *ExhaustedError) Is(target error) bool {
	switch target {
	case ErrAcquisitionExhausted:
		return true
	case services.ErrNotFound:
		return e.Permanent
	case services.ErrTransient:
		return !e.Permanent
	}
	return false
}

// ShortMaxSeconds is the longest duration still measured as short-form.
const ShortMaxSeconds = 60

// DeriveKind applies measured geometry and duration to the listing kind.
// A short listing hint always wins.
func DeriveKind(hint catalog.Kind, width, height int, durationSeconds float64) catalog.Kind {
	measured := (durationSeconds > 0 && durationSeconds <= ShortMaxSeconds) || height > width
	return hint.Upgrade(measured)
}

// PlaceholderTitle is used when neither the payload nor the listing has a
// usable title.
const PlaceholderTitle = "Amazing Video"

var badTitlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^dl[/\\]`),
	regexp.MustCompile(`(?i)\.f\d+`),
	regexp.MustCompile(`(?i)\.(mp4|webm|mkv)$`),
	regexp.MustCompile(`^\.`),
	regexp.MustCompile(`(?i)^untitled$`),
}

// BadTitle reports titles that are empty or look like file paths or
// format ids rather than real titles.
func BadTitle(title string) bool {
	t := strings.TrimSpace(title)
	if len([]rune(t)) < 2 {
		return true
	}
	if strings.ContainsAny(t, `/\`) {
		return true
	}
	for _, re := range badTitlePatterns {
		if re.MatchString(t) {
			return true
		}
	}
	return false
}

// ChooseTitle returns the first good title of payload and listing, or the
// placeholder.
func ChooseTitle(payload, listing string) string {
	for _, candidate := range []string{payload, listing} {
		if !BadTitle(candidate) {
			return strings.TrimSpace(candidate)
		}
	}
	return PlaceholderTitle
}
