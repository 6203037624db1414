package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"golang.org/x/oauth2"
)

func TestModelInfoCapabilities(t *testing.T) {
	tests := []struct {
		name  string
		model ModelInfo
		want  []string
	}{
		{
			name:  "plain model",
			model: ModelInfo{ID: "kimi-k2"},
			want:  nil,
		},
		{
			name:  "reasoning flag",
			model: ModelInfo{ID: "kimi-k2", SupportsReasoning: true},
			want:  []string{CapThinking},
		},
		{
			name:  "thinking in name forces always thinking",
			model: ModelInfo{ID: "kimi-k2-thinking"},
			want:  []string{CapAlwaysThinking, CapThinking},
		},
		{
			name:  "vision flags",
			model: ModelInfo{ID: "kimi-k2", SupportsImageIn: true, SupportsVideoIn: true},
			want:  []string{CapImageIn, CapVideoIn},
		},
		{
			name:  "k2.5 implies thinking and vision",
			model: ModelInfo{ID: "kimi-k2.5"},
			want:  []string{CapImageIn, CapThinking, CapVideoIn},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.model.Capabilities()
			if len(got) == 0 {
				got = nil
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Capabilities() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestListModels(t *testing.T) {
	var gotAuthorization string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		gotAuthorization = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[
			{"id":"kimi-k2.5","context_length":262144},
			{"id":"kimi-k2-thinking","context_length":131072,"supports_reasoning":true},
			{"id":"other-vendor-model","context_length":8192},
			{"id":""}
		]}`)
	}))
	defer srv.Close()

	p := Platform{ID: "test", BaseURL: srv.URL, AllowedPrefixes: []string{"kimi-k"}}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-123", TokenType: "Bearer"})

	models, err := NewClient().ListModels(context.Background(), p, ts)
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}

	if gotAuthorization != "Bearer tok-123" {
		t.Errorf("Authorization header = %q, want Bearer token", gotAuthorization)
	}

	var ids []string
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	want := []string{"kimi-k2.5", "kimi-k2-thinking"}
	if !slices.Equal(ids, want) {
		t.Errorf("ListModels() ids = %v, want %v", ids, want)
	}
	if models[0].ContextLength != 262144 {
		t.Errorf("context length = %d, want 262144", models[0].ContextLength)
	}
}

func TestListModelsMissingData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"object":"list"}`)
	}))
	defer srv.Close()

	p := Platform{ID: "test", BaseURL: srv.URL}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"})
	if _, err := NewClient().ListModels(context.Background(), p, ts); err == nil {
		t.Fatal("ListModels() error = nil, want error for missing data field")
	}
}

func TestListModelsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	p := Platform{ID: "test", BaseURL: srv.URL}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"})
	if _, err := NewClient().ListModels(context.Background(), p, ts); err == nil {
		t.Fatal("ListModels() error = nil, want error for non-200 status")
	}
}

func TestManagedKeys(t *testing.T) {
	key := ManagedProviderKey("kimi-code")
	if key != "managed:kimi-code" {
		t.Errorf("ManagedProviderKey() = %q", key)
	}
	if !IsManagedProviderKey(key) {
		t.Error("IsManagedProviderKey() = false for managed key")
	}
	if IsManagedProviderKey("my-provider") {
		t.Error("IsManagedProviderKey() = true for user key")
	}
	if got := ParseManagedProviderKey(key); got != "kimi-code" {
		t.Errorf("ParseManagedProviderKey() = %q", got)
	}
	if got := ParseManagedProviderKey("my-provider"); got != "" {
		t.Errorf("ParseManagedProviderKey(user key) = %q, want empty", got)
	}
	if got := ManagedModelKey("kimi-code", "kimi-k2.5"); got != "kimi-code/kimi-k2.5" {
		t.Errorf("ManagedModelKey() = %q", got)
	}
}

func TestPlatformCatalog(t *testing.T) {
	p, ok := ByID(KimiCodeID)
	if !ok {
		t.Fatal("ByID(kimi-code) not found")
	}
	if p.SearchURL == "" || p.FetchURL == "" {
		t.Errorf("kimi-code platform missing service URLs: %+v", p)
	}

	t.Setenv("KIMI_CODE_BASE_URL", "https://staging.example/v1")
	p, _ = ByID(KimiCodeID)
	if p.BaseURL != "https://staging.example/v1" {
		t.Errorf("BaseURL = %q, want env override", p.BaseURL)
	}

	if _, ok := ByID("nope"); ok {
		t.Error("ByID(nope) found = true")
	}
}
