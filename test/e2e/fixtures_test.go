package e2e

import (
	"strings"
	"testing"

	"github.com/hyperjump/kizuna/internal/extract"
)

func TestWriteResume_AllExtensionsExtractable(t *testing.T) {
	e := extract.NewExtractor()
	text := ResumeText("Ayu Lestari", Topics[3])
	for _, ext := range ResumeExtensions {
		t.Run(ext, func(t *testing.T) {
			content, err := WriteResume(ext, text)
			if err != nil {
				t.Fatalf("WriteResume: %v", err)
			}
			got, err := e.ExtractBytes(content, ext)
			if err != nil {
				t.Fatalf("ExtractBytes: %v", err)
			}
			r := extract.ParseResume(got)
			if r.Name != "Ayu Lestari" {
				t.Errorf("name = %q", r.Name)
			}
			if r.Email != "ayu.lestari@example.com" {
				t.Errorf("email = %q", r.Email)
			}
			if !strings.Contains(r.Summary, "kubernetes") {
				t.Errorf("summary %q does not mention kubernetes", r.Summary)
			}
			if len(r.Skills) != 2 {
				t.Errorf("skills = %v", r.Skills)
			}
		})
	}
}

func TestWriteResume_unknownExtension(t *testing.T) {
	if _, err := WriteResume(".xlsx", "x"); err == nil {
		t.Error("expected error for .xlsx")
	}
}
