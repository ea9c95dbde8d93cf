// Package rewrite prepares the metadata published with each item. All
// functions are pure and deterministic: the same input always yields the
// same output.
package rewrite

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Destination limits.
const (
	MaxTitleRunes       = 100
	MaxDescriptionRunes = 5000
	MaxTags             = 30
	MaxTagChars         = 500
	shortTitleBudget    = 91
	minDescriptionRunes = 10
)

// FallbackTitle replaces a title that cleaning leaves empty.
const FallbackTitle = "Amazing Video"

// ShortTags are appended to short-form items.
var ShortTags = []string{"shorts", "reels", "ytshorts", "short video"}

var (
	hashtagPattern   = regexp.MustCompile(`#[\p{L}\p{N}_]+`)
	spacePattern     = regexp.MustCompile(`[ \t\p{Zs}]+`)
	blankRunPattern  = regexp.MustCompile(`\n{3,}`)
	shortsTagPattern = regexp.MustCompile(`(?i)#shorts\b`)
)

var titleCaser = cases.Title(language.English)

// Input is the metadata of one acquired item.
type Input struct {
	Title       string
	Description string
	Tags        []string
	Short       bool
	SourceURL   string
}

// Output is the metadata to publish.
type Output struct {
	Title       string
	Description string
	Tags        []string
}

// Rewrite applies Title, Description and Tags, then the short-form rules.
func Rewrite(in Input) Output {
	title := Title(in.Title)
	desc := Description(in.Description, title, in.SourceURL)
	tags := Tags(in.Tags)
	if in.Short {
		title = ShortTitle(title)
		desc = ShortDescription(desc)
		tags = Tags(append(tags, ShortTags...))
	}
	return Output{Title: title, Description: desc, Tags: tags}
}

// Title cleans a source title: leading symbols and hashtags are removed,
// whitespace collapsed, single-case titles converted to title case, and the
// result fitted to MaxTitleRunes. A title with nothing left after cleaning
// becomes FallbackTitle.
func Title(original string) string {
	t := norm.NFC.String(original)
	t = hashtagPattern.ReplaceAllString(t, "")
	t = strings.TrimLeftFunc(t, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '"' && r != '\''
	})
	t = strings.TrimSpace(spacePattern.ReplaceAllString(t, " "))
	if t == "" {
		return FallbackTitle
	}
	if singleCase(t) {
		t = titleCaser.String(strings.ToLower(t))
	}
	return truncateWords(t, MaxTitleRunes)
}

// ShortTitle appends " #Shorts" unless the title already carries it,
// shortening the title to make room.
func ShortTitle(title string) string {
	if shortsTagPattern.MatchString(title) {
		return title
	}
	if len([]rune(title)) > shortTitleBudget {
		title = strings.TrimSpace(string([]rune(title)[:shortTitleBudget]))
	}
	return title + " #Shorts"
}

// Description cleans a source description. Chapter timestamps are kept;
// blank-line runs are collapsed. A missing or trivial description is
// replaced by the title. A credit line naming sourceURL is appended.
func Description(original, title, sourceURL string) string {
	d := norm.NFC.String(strings.ReplaceAll(original, "\r\n", "\n"))
	lines := strings.Split(d, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(spacePattern.ReplaceAllString(line, " "), unicode.IsSpace)
	}
	d = strings.TrimSpace(blankRunPattern.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
	if len([]rune(d)) < minDescriptionRunes {
		d = strings.TrimSpace(title)
	}
	if u := strings.TrimSpace(sourceURL); u != "" {
		d = strings.TrimSpace(d + "\n\nOriginal: " + u)
	}
	return truncateRunes(d, MaxDescriptionRunes)
}

// ShortDescription prefixes "#Shorts" unless already present.
func ShortDescription(desc string) string {
	if shortsTagPattern.MatchString(desc) {
		return desc
	}
	return truncateRunes("#Shorts\n\n"+desc, MaxDescriptionRunes)
}

// Tags trims, strips leading '#', collapses whitespace and dedupes
// case-insensitively, keeping first occurrences, within MaxTags entries
// and MaxTagChars total characters.
func Tags(original []string) []string {
	out := make([]string, 0, len(original))
	seen := make(map[string]struct{}, len(original))
	total := 0
	for _, tag := range original {
		t := strings.TrimLeft(strings.TrimSpace(norm.NFC.String(tag)), "#")
		t = strings.TrimSpace(spacePattern.ReplaceAllString(t, " "))
		t = strings.Map(func(r rune) rune {
			if r == '<' || r == '>' || r == ',' {
				return -1
			}
			return r
		}, t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, dup := seen[key]; dup {
			continue
		}
		cost := len([]rune(t))
		if strings.Contains(t, " ") {
			// quoted by the destination
			cost += 2
		}
		if len(out) > 0 {
			cost++
		}
		if len(out) >= MaxTags || total+cost > MaxTagChars {
			break
		}
		seen[key] = struct{}{}
		out = append(out, t)
		total += cost
	}
	return out
}

func singleCase(s string) bool {
	hasUpper, hasLower := false, false
	for _, r := range s {
		if unicode.IsUpper(r) {
			hasUpper = true
		} else if unicode.IsLower(r) {
			hasLower = true
		}
	}
	return hasUpper != hasLower
}

// truncateWords cuts s to at most n runes, preferring a word boundary.
func truncateWords(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	cut := string(runes[:n])
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n]))
}
