package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIPrioritize(t *testing.T) {
	var gotAuth, gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotModel = req.Model
		content := `{"prioritization":[{"taskId":"t1","suggestedPriority":"high","priorityScore":87,"reasoning":"blocks release","estimatedComplexity":4}]}`
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
	defer srv.Close()

	client := NewOpenAI(srv.Client(), srv.URL+"/v1", "sk-test", "gpt-4o-mini")
	out, err := client.PrioritizeTasks(context.Background(), ProjectInput{Name: "Launch", TeamSize: 2}, []TaskInput{{ID: "t1", Title: "Ship"}})
	if err != nil {
		t.Fatalf("prioritize: %v", err)
	}
	if gotAuth != "Bearer sk-test" || gotModel != "gpt-4o-mini" {
		t.Fatalf("auth=%q model=%q", gotAuth, gotModel)
	}
	if len(out) != 1 || out[0].TaskID != "t1" || out[0].SuggestedPriority != "high" || out[0].PriorityScore != 87 {
		t.Fatalf("unexpected suggestions %+v", out)
	}
}

func TestOpenAIErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	client := NewOpenAI(srv.Client(), srv.URL, "", "m")
	if _, err := client.PrioritizeTasks(context.Background(), ProjectInput{}, nil); err == nil {
		t.Fatalf("expected error for 429")
	}
}

func TestParseSuggestionsBareArray(t *testing.T) {
	out, err := ParseSuggestions(`[{"taskId":"a","suggestedPriority":"low","priorityScore":10}]`)
	if err != nil || len(out) != 1 || out[0].TaskID != "a" {
		t.Fatalf("out=%+v err=%v", out, err)
	}
	if _, err := ParseSuggestions("not json"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestDisabledClient(t *testing.T) {
	if _, err := (Disabled{}).PrioritizeTasks(context.Background(), ProjectInput{}, nil); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}
