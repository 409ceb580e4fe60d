package models

import (
	"errors"
	"testing"
)

func TestProfile_Render(t *testing.T) {
	tests := []struct {
		name string
		p    Profile
		want string
	}{
		{"empty", Profile{ID: "x"}, ""},
		{"name only", Profile{Name: "Ada"}, "Ada"},
		{
			"field order",
			Profile{
				Goals:      []string{"mentor"},
				Profession: "engineer",
				Location:   "Berlin",
				Skills:     []string{"go", "sql"},
				Interests:  []string{"climbing", "chess"},
				Bio:        "builds databases",
				Name:       "Ada",
				Experience: "10 years",
			},
			"Ada builds databases climbing chess go sql Berlin engineer 10 years mentor",
		},
		{"skips blanks", Profile{Name: " Ada ", Bio: "  ", Skills: []string{"", "go"}}, "Ada go"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Render(); got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProfile_RenderDeterministic(t *testing.T) {
	p := Profile{Name: "Ada", Interests: []string{"b", "a"}}
	if p.Render() != p.Render() {
		t.Error("Render is not deterministic")
	}
	if p.Render() != "Ada b a" {
		t.Errorf("list order must be preserved, got %q", p.Render())
	}
}

func TestProfile_Validate(t *testing.T) {
	if err := (&Profile{Name: "Ada"}).Validate(); err == nil {
		t.Error("expected error without id")
	}
	if err := (&Profile{ID: "u1"}).Validate(); !errors.Is(err, ErrEmptyProfile) {
		t.Errorf("err = %v, want ErrEmptyProfile", err)
	}
	if err := (&Profile{ID: "u1", Bio: "hi"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestClampTopN(t *testing.T) {
	tests := []struct{ in, want int }{{0, DefaultTopN}, {-3, DefaultTopN}, {5, 5}, {500, MaxTopN}}
	for _, tt := range tests {
		if got := ClampTopN(tt.in); got != tt.want {
			t.Errorf("ClampTopN(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
