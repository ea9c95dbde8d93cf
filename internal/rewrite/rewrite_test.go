package rewrite

import (
	"strings"
	"testing"
)

func TestTitle(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  My   Great Video #fun #viral ", "My Great Video"},
		{"🔥🔥 Hot Take", "Hot Take"},
		{"ALL CAPS TITLE", "All Caps Title"},
		{"all lower title", "All Lower Title"},
		{"Mixed iPhone Review", "Mixed iPhone Review"},
		{`"Quoted" start`, `"Quoted" start`},
		{"#funny #cat", FallbackTitle},
		{"🔥🔥🔥", FallbackTitle},
		{"!!! #viral", FallbackTitle},
	}
	for _, tc := range cases {
		if got := Title(tc.in); got != tc.want {
			t.Fatalf("Title(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRewriteNeverPublishesEmptyTitle(t *testing.T) {
	out := Rewrite(Input{Title: "#funny #cat", Short: true})
	if out.Title != FallbackTitle+" #Shorts" {
		t.Fatalf("title = %q", out.Title)
	}
}

func TestTitleIsDeterministicAndBounded(t *testing.T) {
	long := strings.Repeat("word ", 40)
	a, b := Title(long), Title(long)
	if a != b {
		t.Fatal("Title must be deterministic")
	}
	if n := len([]rune(a)); n > MaxTitleRunes {
		t.Fatalf("title has %d runes", n)
	}
	if strings.HasSuffix(a, "wor") {
		t.Fatalf("title should break on a word boundary: %q", a)
	}
}

func TestShortTitle(t *testing.T) {
	if got := ShortTitle("Clip"); got != "Clip #Shorts" {
		t.Fatalf("ShortTitle = %q", got)
	}
	if got := ShortTitle("Clip #shorts"); got != "Clip #shorts" {
		t.Fatalf("existing tag must not be duplicated: %q", got)
	}
	long := strings.Repeat("x", 100)
	got := ShortTitle(long)
	if n := len([]rune(got)); n != 99 || !strings.HasSuffix(got, " #Shorts") {
		t.Fatalf("long short title = %q (%d runes)", got, n)
	}
}

func TestDescription(t *testing.T) {
	got := Description("Line one\r\n\r\n\r\n\r\n0:00 Intro\n", "Title", "https://www.youtube.com/watch?v=a1")
	want := "Line one\n\n0:00 Intro\n\nOriginal: https://www.youtube.com/watch?v=a1"
	if got != want {
		t.Fatalf("Description = %q, want %q", got, want)
	}
	if got := Description("short", "The Title", ""); got != "The Title" {
		t.Fatalf("trivial description should fall back to title, got %q", got)
	}
	huge := Description(strings.Repeat("a", 6000), "t", "")
	if len([]rune(huge)) != MaxDescriptionRunes {
		t.Fatalf("description not capped: %d", len([]rune(huge)))
	}
}

func TestTags(t *testing.T) {
	got := Tags([]string{" Go ", "#golang", "go", "", "  multi   word ", "a<b>"})
	want := []string{"Go", "golang", "multi word", "ab"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("Tags = %v, want %v", got, want)
	}
	var many []string
	for i := 0; i < 50; i++ {
		many = append(many, "tag"+string(rune('A'+i%26))+string(rune('a'+i/26)))
	}
	if n := len(Tags(many)); n != MaxTags {
		t.Fatalf("expected %d tags, got %d", MaxTags, n)
	}
	var wide []string
	for i := 0; i < 30; i++ {
		wide = append(wide, strings.Repeat(string(rune('a'+i%26)), 40)+string(rune('A'+i/26)))
	}
	total := 0
	for _, tag := range Tags(wide) {
		total += len(tag) + 1
	}
	if total > MaxTagChars+1 {
		t.Fatalf("tag characters exceed limit: %d", total)
	}
}

func TestRewriteShortRules(t *testing.T) {
	out := Rewrite(Input{
		Title:       "quick clip",
		Description: "A description that is long enough",
		Tags:        []string{"Shorts", "fun"},
		Short:       true,
		SourceURL:   "https://www.youtube.com/watch?v=b2",
	})
	if out.Title != "Quick Clip #Shorts" {
		t.Fatalf("title = %q", out.Title)
	}
	if !strings.HasPrefix(out.Description, "#Shorts\n\n") {
		t.Fatalf("description = %q", out.Description)
	}
	want := []string{"Shorts", "fun", "reels", "ytshorts", "short video"}
	if strings.Join(out.Tags, "|") != strings.Join(want, "|") {
		t.Fatalf("tags = %v, want %v", out.Tags, want)
	}

	primary := Rewrite(Input{Title: "Long Form", Description: "", Tags: nil})
	if strings.Contains(primary.Title, "#Shorts") || strings.Contains(primary.Description, "#Shorts") || len(primary.Tags) != 0 {
		t.Fatalf("primary items get no short rules: %+v", primary)
	}
}
