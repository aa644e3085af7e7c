package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scoutd/scout/internal/agent"
	"github.com/scoutd/scout/internal/config"
	"github.com/scoutd/scout/internal/session"
	"github.com/scoutd/scout/internal/store"
)

type echoRuntime struct {
	replayed [][]agent.Turn
}

func (e *echoRuntime) Replay(turns []agent.Turn) { e.replayed = append(e.replayed, turns) }

func (e *echoRuntime) Send(_ context.Context, text string, _ func(string)) (string, error) {
	return "echo: " + text, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *store.Store, *echoRuntime) {
	t.Helper()
	st, err := store.Open(config.StorageConfig{
		Path:          filepath.Join(t.TempDir(), "server.db"),
		BusyTimeoutMS: 1000,
		ListLimit:     50,
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	rt := &echoRuntime{}
	srv := httptest.NewServer(New(st, session.New(st, rt)))
	t.Cleanup(srv.Close)
	return srv, st, rt
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestConversationCRUD(t *testing.T) {
	srv, _, _ := newTestServer(t)

	// Create with explicit title and metadata.
	resp := do(t, http.MethodPost, srv.URL+"/api/conversation", map[string]any{
		"title":    "Research: entanglement",
		"metadata": map[string]any{"origin": "test"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	created := decode[store.Conversation](t, resp)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "Research: entanglement", created.Title)

	// Fetch it back.
	resp = do(t, http.MethodGet, srv.URL+"/api/conversation/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[store.Conversation](t, resp)
	require.Equal(t, created.ID, got.ID)
	require.Equal(t, store.Metadata{"origin": "test"}, got.Metadata)

	// Rename via query parameter.
	resp = do(t, http.MethodPatch, srv.URL+"/api/conversation/"+created.ID+"/title?title=Renamed", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Appears in the listing with its count.
	resp = do(t, http.MethodGet, srv.URL+"/api/conversations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listed := decode[[]store.Conversation](t, resp)
	require.Len(t, listed, 1)
	require.Equal(t, "Renamed", listed[0].Title)
	require.Equal(t, 0, listed[0].MessageCount)

	// Delete, then every lookup 404s.
	resp = do(t, http.MethodDelete, srv.URL+"/api/conversation/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = do(t, http.MethodDelete, srv.URL+"/api/conversation/"+created.ID, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = do(t, http.MethodGet, srv.URL+"/api/conversation/"+created.ID, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMessageEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/conversation", map[string]any{})
	conv := decode[store.Conversation](t, resp)

	// Empty conversation lists as an empty array, not an error.
	resp = do(t, http.MethodGet, srv.URL+"/api/conversation/"+conv.ID+"/messages", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, decode[[]store.Message](t, resp))

	for i, m := range []map[string]any{
		{"role": "human", "content": "What is quantum entanglement?"},
		{"role": "ai", "content": "Quantum entanglement is..."},
	} {
		resp = do(t, http.MethodPost, srv.URL+"/api/conversation/"+conv.ID+"/message", m)
		require.Equal(t, http.StatusOK, resp.StatusCode, "message %d", i)
		msg := decode[store.Message](t, resp)
		require.Equal(t, conv.ID, msg.ConversationID)
		require.NotZero(t, msg.ID)
	}

	resp = do(t, http.MethodGet, srv.URL+"/api/conversation/"+conv.ID+"/messages", nil)
	msgs := decode[[]store.Message](t, resp)
	require.Len(t, msgs, 2)
	require.Equal(t, "human", msgs[0].Role)
	require.Equal(t, "ai", msgs[1].Role)

	// Unknown conversation: 404 on both append and listing.
	resp = do(t, http.MethodPost, srv.URL+"/api/conversation/ghost-123/message",
		map[string]any{"role": "human", "content": "boo"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = do(t, http.MethodGet, srv.URL+"/api/conversation/ghost-123/messages", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Roles outside the taxonomy are rejected.
	resp = do(t, http.MethodPost, srv.URL+"/api/conversation/"+conv.ID+"/message",
		map[string]any{"role": "system", "content": "nope"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatResumeReset(t *testing.T) {
	srv, st, rt := newTestServer(t)
	ctx := context.Background()

	// First chat turn lazily creates a conversation and saves both sides.
	resp := do(t, http.MethodPost, srv.URL+"/api/chat", map[string]any{"message": "hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := decode[chatResponse](t, resp)
	require.Equal(t, "echo: hello", first.Reply)
	require.True(t, first.Saved)
	require.NotEmpty(t, first.ConversationID)

	msgs, err := st.Messages(ctx, first.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	// Reset, then resume the same conversation and continue it.
	resp = do(t, http.MethodPost, srv.URL+"/api/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/api/resume/"+first.ConversationID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, rt.replayed, 1)
	require.Len(t, rt.replayed[0], 2)

	resp = do(t, http.MethodPost, srv.URL+"/api/chat", map[string]any{"message": "more"})
	second := decode[chatResponse](t, resp)
	require.Equal(t, first.ConversationID, second.ConversationID)

	msgs, err = st.Messages(ctx, first.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	// Resuming an unknown id is a 404.
	resp = do(t, http.MethodPost, srv.URL+"/api/resume/ghost-123", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChatRequiresMessage(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp := do(t, http.MethodPost, srv.URL+"/api/chat", map[string]any{"message": ""})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListOrdering(t *testing.T) {
	srv, st, _ := newTestServer(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		conv, err := st.CreateConversation(ctx, fmt.Sprintf("conv %d", i), nil)
		require.NoError(t, err)
		ids = append(ids, conv.ID)
	}
	// Touch the first conversation; it should list first.
	_, err := st.AddMessage(ctx, ids[0], store.RoleHuman, "bump", nil)
	require.NoError(t, err)

	resp := do(t, http.MethodGet, srv.URL+"/api/conversations", nil)
	listed := decode[[]store.Conversation](t, resp)
	require.Len(t, listed, 3)
	require.Equal(t, ids[0], listed[0].ID)
	require.Equal(t, 1, listed[0].MessageCount)
}
