package extract

import (
	"strings"
	"testing"
)

func TestParseResume(t *testing.T) {
	text := `
ada@example.com
# Ada Lovelace
Analyst and writer.
Technical Skills: Mathematics, Analytical Engine | notes; poetry
`
	r := ParseResume(text)
	if r.Name != "Ada Lovelace" {
		t.Errorf("Name = %q", r.Name)
	}
	if r.Email != "ada@example.com" {
		t.Errorf("Email = %q", r.Email)
	}
	want := []string{"Mathematics", "Analytical Engine", "notes", "poetry"}
	if strings.Join(r.Skills, "/") != strings.Join(want, "/") {
		t.Errorf("Skills = %v, want %v", r.Skills, want)
	}
	if strings.Contains(r.Summary, "\n") || !strings.HasPrefix(r.Summary, "ada@example.com # Ada") {
		t.Errorf("Summary = %q", r.Summary)
	}
}

func TestParseResume_SummaryTruncated(t *testing.T) {
	r := ParseResume(strings.Repeat("word ", 2000))
	if n := len([]rune(r.Summary)); n != maxSummaryRunes {
		t.Errorf("summary length = %d, want %d", n, maxSummaryRunes)
	}
}

func TestParseResume_Empty(t *testing.T) {
	r := ParseResume("")
	if r.Name != "" || r.Summary != "" || len(r.Skills) != 0 {
		t.Errorf("got %+v", r)
	}
}
