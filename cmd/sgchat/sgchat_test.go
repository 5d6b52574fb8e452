package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/service-geek/client/config"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func newLocalHTTPServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()

	l, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &httptest.Server{
		Listener: l,
		Config:   &http.Server{Handler: handler},
	}
	srv.Start()
	t.Cleanup(srv.Close)
	return srv
}

// isolateEnv points the CLI at a fresh config file and clears overrides.
func isolateEnv(t *testing.T) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("SGCHAT_CONFIG_PATH", cfgPath)
	for _, k := range []string{"SGCHAT_URL", "SGCHAT_TOKEN", "SGCHAT_PROJECT", "SGCHAT_ACCOUNT", "SGCHAT_SERVER"} {
		t.Setenv(k, "")
	}
	t.Chdir(t.TempDir())
	return cfgPath
}

func writeConfig(t *testing.T, path, url string) {
	t.Helper()
	data := strings.TrimSpace(`
servers:
  local:
    url: `+url+`
accounts:
  me:
    server: local
    token: tok
    user_id: u1
    default_project: p1
default_account: me
`) + "\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd(strings.NewReader(stdin), &stdout, &stderr)
	root.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return stdout.String(), err
}

const pageJSON = `[
  {"id":"m2","content":"second","userId":"u2","user":{"id":"u2","firstName":"Ana"},"createdAt":"2025-01-01T00:00:02Z","updatedAt":"2025-01-01T00:00:02Z"},
  {"id":"m1","content":"first","userId":"u1","user":{"id":"u1","firstName":"Bo"},"createdAt":"2025-01-01T00:00:01Z","updatedAt":"2025-01-01T00:00:01Z"}
]`

func TestHistoryPrintsOldestFirst(t *testing.T) {
	cfgPath := isolateEnv(t)

	server := newLocalHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/project/p1/messages" {
			t.Errorf("path=%s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("auth=%q", r.Header.Get("Authorization"))
		}
		if r.URL.Query().Get("page") != "1" {
			t.Errorf("query=%s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(pageJSON))
	}))
	writeConfig(t, cfgPath, server.URL)

	out, err := runCLI(t, "", "history", "--json")
	require.NoError(t, err)

	var got []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	require.Len(t, got, 2)
	require.Equal(t, "m1", got[0]["id"])
	require.Equal(t, "m2", got[1]["id"])

	out, err = runCLI(t, "", "history")
	require.NoError(t, err)
	require.Less(t, strings.Index(out, "first"), strings.Index(out, "second"))
	require.Contains(t, out, "Bo:")
	require.Contains(t, out, "[m2]")
}

func TestHistoryRequiresProject(t *testing.T) {
	isolateEnv(t)

	_, err := runCLI(t, "", "--url", "http://127.0.0.1:1", "--token", "tok", "history")
	require.ErrorContains(t, err, "no project selected")
}

func TestSendUsesHTTPWhenNotConnected(t *testing.T) {
	cfgPath := isolateEnv(t)

	server := newLocalHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/project/p1/messages" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["content"] != "hi there" {
			t.Errorf("content=%q", body["content"])
		}
		_, _ = w.Write([]byte(`{"id":"m9","content":"hi there","userId":"u1","createdAt":"2025-01-01T00:00:09Z","updatedAt":"2025-01-01T00:00:09Z"}`))
	}))
	writeConfig(t, cfgPath, server.URL)

	out, err := runCLI(t, "", "send", "hi", "there")
	require.NoError(t, err)
	require.Equal(t, "m9\n", out)
}

func TestSendRejectsBlankContent(t *testing.T) {
	cfgPath := isolateEnv(t)
	writeConfig(t, cfgPath, "http://127.0.0.1:1")

	_, err := runCLI(t, "", "send", "   ")
	require.ErrorContains(t, err, "empty")
}

func TestDelete(t *testing.T) {
	cfgPath := isolateEnv(t)

	server := newLocalHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/chat/messages/m1" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	writeConfig(t, cfgPath, server.URL)

	out, err := runCLI(t, "", "delete", "m1")
	require.NoError(t, err)
	require.Equal(t, "deleted m1\n", out)
}

func TestHealth(t *testing.T) {
	isolateEnv(t)

	server := newLocalHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path=%s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))

	out, err := runCLI(t, "", "--url", server.URL, "health")
	require.NoError(t, err)
	require.Contains(t, out, "connected")

	server.Close()
	_, err = runCLI(t, "", "--url", server.URL, "health")
	require.ErrorContains(t, err, "unreachable")
}

func TestConfigSetAccountLooksUpUserAndPins(t *testing.T) {
	cfgPath := isolateEnv(t)

	server := newLocalHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/me" {
			t.Errorf("path=%s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok_new" {
			t.Errorf("auth=%q", r.Header.Get("Authorization"))
		}
		_, _ = w.Write([]byte(`{"id":"u42","email":"a@example.com"}`))
	}))

	out, err := runCLI(t, "",
		"--url", server.URL, "--token", "tok_new", "-p", "p7",
		"config", "set-account", "work", "--notifications=false", "--pin")
	require.NoError(t, err)
	require.Contains(t, out, "saved account work")

	cfg, err := config.LoadGlobal(cfgPath)
	require.NoError(t, err)
	require.Equal(t, "work", cfg.DefaultAccount)
	acct := cfg.Accounts["work"]
	require.Equal(t, "tok_new", acct.Token)
	require.Equal(t, "u42", acct.UserID)
	require.Equal(t, "p7", acct.DefaultProject)
	require.False(t, acct.NotificationsEnabled())
	require.Equal(t, server.URL, cfg.Servers[acct.Server].URL)

	wd, err := os.Getwd()
	require.NoError(t, err)
	ctx, err := config.LoadContext(filepath.Join(wd, config.ContextRelativePath))
	require.NoError(t, err)
	require.Equal(t, "work", ctx.DefaultAccount)
	require.Equal(t, "p7", ctx.Project)
	require.Equal(t, "work", ctx.ServerAccounts[acct.Server])

	out, err = runCLI(t, "", "--json", "config", "show")
	require.NoError(t, err)
	require.NotContains(t, out, "tok_new")
	require.Contains(t, out, `"has_token": true`)
}

func TestWatchPrintsHistoryAndLiveMessages(t *testing.T) {
	cfgPath := isolateEnv(t)

	joined := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/project/p1/messages", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(pageJSON))
	})
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer ws.CloseNow()

		ctx := r.Context()
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		joined <- string(data)

		frames := []string{
			`{"type":"newMessage","payload":{"id":"m2","content":"second","userId":"u2","createdAt":"2025-01-01T00:00:02Z","updatedAt":"2025-01-01T00:00:02Z"}}`,
			`{"type":"newMessage","payload":{"id":"m3","content":"live one","userId":"u2","user":{"id":"u2","firstName":"Ana"},"createdAt":"2025-01-01T00:00:03Z","updatedAt":"2025-01-01T00:00:03Z"}}`,
			`{"type":"newMessage","payload":{"id":"m3","content":"live one","userId":"u2","user":{"id":"u2","firstName":"Ana"},"createdAt":"2025-01-01T00:00:03Z","updatedAt":"2025-01-01T00:00:03Z"}}`,
		}
		for _, frame := range frames {
			if err := ws.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
				return
			}
		}
		_ = ws.Close(websocket.StatusGoingAway, "server shutdown")
	})
	server := newLocalHTTPServer(t, mux)
	writeConfig(t, cfgPath, server.URL)

	out, err := runCLI(t, "", "watch", "--no-notify")
	require.ErrorContains(t, err, "server shutdown")

	select {
	case frame := <-joined:
		require.JSONEq(t, `{"type":"joinProject","payload":{"projectId":"p1"}}`, frame)
	default:
		t.Fatal("project was never joined")
	}
	require.Less(t, strings.Index(out, "first"), strings.Index(out, "second"))
	require.Less(t, strings.Index(out, "second"), strings.Index(out, "live one"))
	require.Equal(t, 1, strings.Count(out, "second"), out)
	require.Equal(t, 1, strings.Count(out, "live one"), out)
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	t.Parallel()

	_, err := newLogger(&bytes.Buffer{}, "loud")
	require.Error(t, err)

	logger, err := newLogger(&bytes.Buffer{}, "debug")
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestTypingLine(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", typingLine(nil))
	require.Equal(t, "u1 is typing", typingLine([]string{"u1"}))
	require.Equal(t, "u1, u2 are typing", typingLine([]string{"u1", "u2"}))
}
