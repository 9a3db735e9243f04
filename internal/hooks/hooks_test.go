package hooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGitHub struct {
	mu      sync.Mutex
	hooks   []map[string]interface{}
	created []map[string]interface{}
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path != "/repos/karmakaze/quicklog/hooks" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodGet:
		_ = json.NewEncoder(w).Encode(f.hooks)
	case http.MethodPost:
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		body["id"] = len(f.hooks) + 1
		f.created = append(f.created, body)
		f.hooks = append(f.hooks, body)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T, handler http.Handler) *github.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base
	return client
}

func TestRegister_CreatesHook(t *testing.T) {
	fake := &fakeGitHub{}
	client := newTestClient(t, fake)

	created, err := Register(context.Background(), client, "karmakaze/quicklog", "https://deploy.example.com/")
	require.NoError(t, err)
	assert.True(t, created)

	require.Len(t, fake.created, 1)
	hook := fake.created[0]
	assert.Equal(t, []interface{}{"push"}, hook["events"])
	assert.Equal(t, true, hook["active"])

	cfg, ok := hook["config"].(map[string]interface{})
	require.True(t, ok, "config should be an object")
	assert.Equal(t, "https://deploy.example.com/", cfg["url"])
	assert.Equal(t, "json", cfg["content_type"])
	assert.NotContains(t, cfg, "secret")
}

func TestRegister_Idempotent(t *testing.T) {
	fake := &fakeGitHub{}
	client := newTestClient(t, fake)
	ctx := context.Background()

	created, err := Register(ctx, client, "karmakaze/quicklog", "https://deploy.example.com/")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = Register(ctx, client, "karmakaze/quicklog", "https://deploy.example.com/")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Len(t, fake.created, 1)
}

func TestRegister_UnknownRepository(t *testing.T) {
	client := newTestClient(t, &fakeGitHub{})

	_, err := Register(context.Background(), client, "someone/else", "https://deploy.example.com/")
	assert.Error(t, err)
}

func TestSplitFullName(t *testing.T) {
	tests := []struct {
		input   string
		owner   string
		repo    string
		wantErr bool
	}{
		{"karmakaze/quicklog", "karmakaze", "quicklog", false},
		{"noslash", "", "", true},
		{"a/b/c", "", "", true},
		{"/repo", "", "", true},
		{"owner/", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			owner, repo, err := SplitFullName(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.repo, repo)
		})
	}
}

func TestNewClient(t *testing.T) {
	assert.NotNil(t, NewClient(context.Background(), ""))
	assert.NotNil(t, NewClient(context.Background(), "token"))
}
