package embedding

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(16)
	ctx := context.Background()
	a, err := e.Embed(ctx, "go developer in berlin")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := e.Embed(ctx, "go developer in berlin")
	c, _ := e.Embed(ctx, "pastry chef in lyon")
	if len(a) != 16 {
		t.Fatalf("len = %d, want 16", len(a))
	}
	same := true
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same text produced different vectors")
		}
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Error("different texts produced identical vectors")
	}
	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Errorf("norm^2 = %f, want 1", sum)
	}
}

func TestMockEmbedder_EmptyInput(t *testing.T) {
	if _, err := NewMockEmbedder(4).Embed(context.Background(), ""); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("err = %v, want ErrEmptyInput", err)
	}
}

func TestMockEmbedder_DefaultDimensions(t *testing.T) {
	if d := NewMockEmbedder(0).Dimensions(); d != 768 {
		t.Errorf("Dimensions = %d, want 768", d)
	}
}
