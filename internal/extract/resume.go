package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Resume is the structured view of an extracted résumé.
type Resume struct {
	Name    string
	Email   string
	Skills  []string
	Summary string
}

// maxSummaryRunes bounds the embedded summary; long résumés are cut.
const maxSummaryRunes = 4000

var (
	emailRe      = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	skillsHeadRe = regexp.MustCompile(`(?i)^\s*(skills|technical skills|core skills|technologies)\s*[:\-]\s*(.*)$`)
	skillSepRe   = regexp.MustCompile(`\s*[,;|•·]\s*`)
)

// ParseResume pulls a name, email and skills list out of plain résumé text.
// The name is the first short non-empty line that is not an email address.
func ParseResume(text string) *Resume {
	r := &Resume{}
	lines := strings.Split(text, "\n")
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if r.Email == "" {
			r.Email = emailRe.FindString(line)
		}
		if r.Name == "" && utf8.RuneCountInString(line) <= 60 && !emailRe.MatchString(line) {
			r.Name = strings.TrimLeft(line, "# ")
		}
		if m := skillsHeadRe.FindStringSubmatch(line); m != nil {
			for _, s := range skillSepRe.Split(m[2], -1) {
				if s = strings.TrimSpace(s); s != "" {
					r.Skills = append(r.Skills, s)
				}
			}
		}
	}

	summary := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(summary) > maxSummaryRunes {
		summary = string([]rune(summary)[:maxSummaryRunes])
	}
	r.Summary = summary
	return r
}
