package e2e

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"strings"
)

// ResumeExtensions are the résumé formats written by WriteResume. PDF is
// covered by the extract package tests.
var ResumeExtensions = []string{".txt", ".md", ".docx"}

// ResumeText renders a plain résumé for topic t.
func ResumeText(name string, t Topic) string {
	return fmt.Sprintf("%s\n%s@example.com\n\nSummary: builds things with %s in %s.\nSkills: %s, %s\n",
		name, strings.ToLower(strings.ReplaceAll(name, " ", ".")), t.Keyword, t.Location, t.Keyword, t.Skill)
}

// WriteResume returns the bytes of a résumé file with the given extension.
func WriteResume(ext, text string) ([]byte, error) {
	switch ext {
	case ".txt", ".md":
		return []byte(text), nil
	case ".docx":
		return minimalDocx(text), nil
	default:
		return nil, fmt.Errorf("no fixture for %s", ext)
	}
}

// minimalDocx writes one paragraph per line.
func minimalDocx(text string) []byte {
	var body strings.Builder
	for _, line := range strings.Split(text, "\n") {
		body.WriteString(`<w:p><w:r><w:t>` + html.EscapeString(line) + `</w:t></w:r></w:p>`)
	}
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create("word/document.xml")
	_, _ = fw.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `</w:body></w:document>`))
	_ = w.Close()
	return buf.Bytes()
}
