package fileid

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResumeID(t *testing.T) {
	id1 := ResumeID("/cv/ada.pdf")
	id2 := ResumeID("/cv/ada.pdf")
	if id1 != id2 {
		t.Errorf("same path should give same ID: %q vs %q", id1, id2)
	}
	if !strings.HasPrefix(id1, Prefix) || len(id1) != len(Prefix)+24 {
		t.Errorf("unexpected id shape: %q", id1)
	}
	if ResumeID("/cv/grace.pdf") == id1 {
		t.Error("different paths should give different IDs")
	}
}

func TestResumeID_Normalized(t *testing.T) {
	if ResumeID("/cv/ada.pdf") != ResumeID("/cv/./x/../ada.pdf") {
		t.Error("paths should be cleaned before hashing")
	}
}

func TestResumeID_RelativeResolved(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if ResumeID("ada.pdf") != ResumeID(filepath.Join(wd, "ada.pdf")) {
		t.Error("relative path should resolve against the working directory")
	}
}
