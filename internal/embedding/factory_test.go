package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestNew_Mock(t *testing.T) {
	g, err := New(context.Background(), Options{Provider: ProviderMock, Dimensions: 8}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if g.Dimensions() != 8 || g.Name() != "mock" {
		t.Errorf("dims=%d name=%s", g.Dimensions(), g.Name())
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	if _, err := New(context.Background(), Options{Provider: "word2vec", Dimensions: 8}, nil); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNew_MissingKey(t *testing.T) {
	_, err := New(context.Background(), Options{Provider: ProviderGemini, Dimensions: 8}, nil)
	if err == nil {
		t.Fatal("expected error without api key")
	}

	g, err := New(context.Background(), Options{Provider: ProviderOpenAI, Dimensions: 8, AllowMockFallback: true}, nil)
	if err != nil {
		t.Fatalf("fallback allowed: %v", err)
	}
	if !IsFallback(g) {
		t.Error("expected mock fallback")
	}
}

func TestOpenAI_EmbedBatchAgainstFakeServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		type item struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}
		data := make([]item, len(req.Input))
		// Reply out of order to exercise index handling.
		for i := range req.Input {
			j := len(req.Input) - 1 - i
			data[i] = item{Object: "embedding", Index: j, Embedding: []float64{float64(j), 1, 0}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	defer srv.Close()

	o, err := NewOpenAI("test-key", "", srv.URL, 3, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	vecs, err := o.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range vecs {
		if len(v) != 3 || v[0] != float32(i) {
			t.Errorf("vector %d = %v", i, v)
		}
	}
	if o.Name() != "openai/"+DefaultOpenAIModel {
		t.Errorf("Name = %s", o.Name())
	}
}
