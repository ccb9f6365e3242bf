package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer mimics the raglab HTTP API.
func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(StatusResponse{OK: true, Model: "gemma3:4b"})
	})
	mux.HandleFunc("GET /llm_test", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"detail":"Ollama connection error: connection refused"}`))
	})
	mux.HandleFunc("POST /ingest", func(w http.ResponseWriter, r *http.Request) {
		f, fh, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"detail":"file field is required"}`))
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "notes.txt", fh.Filename)
		_ = json.NewEncoder(w).Encode(IngestResponse{Inserted: len(bytes.Fields(data))})
	})
	mux.HandleFunc("POST /ask", func(w http.ResponseWriter, r *http.Request) {
		var req AskRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Question == "" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"detail":"question must not be empty"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(AskResponse{Answer: "You asked: " + req.Question, Sources: []string{"a.txt", "b.pdf"}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommands_Registered(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"ingest", "ask", "health", "probe"} {
		assert.True(t, names[want], "command %q not registered", want)
	}
}

func TestHealthCmd(t *testing.T) {
	srv := fakeServer(t)
	out, err := execute(t, "health", "--server", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Server Status: ok=true model=gemma3:4b\n", out)
}

func TestIngestCmd(t *testing.T) {
	srv := fakeServer(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("one two three"), 0o600))

	out, err := execute(t, "ingest", "--server", srv.URL, path)
	require.NoError(t, err)
	assert.Equal(t, path+": 3 chunks\n", out)

	_, err = execute(t, "ingest", "--server", srv.URL, filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read file")
}

func TestAskCmd(t *testing.T) {
	srv := fakeServer(t)
	out, err := execute(t, "ask", "--server", srv.URL, "What", "is", "PageRank?")
	require.NoError(t, err)
	assert.Equal(t, "You asked: What is PageRank?\n\nSources: a.txt, b.pdf\n", out)
}

func TestProbeCmd_ServerError(t *testing.T) {
	srv := fakeServer(t)
	_, err := execute(t, "probe", "--server", srv.URL)
	require.Error(t, err)
	assert.True(t, IsServerError(err, http.StatusBadGateway))
	assert.Equal(t, "server returned status 502: Ollama connection error: connection refused", err.Error())
}

func TestClient_Ask_Validation(t *testing.T) {
	srv := fakeServer(t)
	c := newClient(srv.URL+"/", 0)

	_, err := c.Ask(context.Background(), "")
	require.Error(t, err)
	assert.True(t, IsServerError(err, http.StatusUnprocessableEntity))
}

func TestErrorDetail(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"detail field", `{"detail":"Ollama 404: model not found"}`, "Ollama 404: model not found"},
		{"non-json body", "  bad gateway\n", "bad gateway"},
		{"json without detail", `{"message":"x"}`, `{"message":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorDetail([]byte(tt.raw)))
		})
	}
}
