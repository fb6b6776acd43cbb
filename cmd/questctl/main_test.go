package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := rootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestQuestCreateSendsBearerAndBody(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"id":3}`))
	}))
	defer srv.Close()

	out, err := execute(t, "--endpoint", srv.URL, "--token", "abc", "quest", "create", "3", "--fungible", "0x0101010101010101010101010101010101010101")
	require.NoError(t, err)
	require.Equal(t, "Bearer abc", gotAuth)
	require.Equal(t, "/v1/quests", gotPath)
	require.EqualValues(t, 3, gotBody["id"])
	require.Contains(t, out, `"id": 3`)
}

func TestWriteWithoutTokenFails(t *testing.T) {
	t.Setenv(tokenEnv, "")
	_, err := execute(t, "--endpoint", "http://127.0.0.1:1", "quest", "claim", "1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "requires a token")
}

func TestServerErrorsAreSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"quest: quest is not claimable","class":"state"}`))
	}))
	defer srv.Close()

	_, err := execute(t, "--endpoint", srv.URL, "--token", "abc", "quest", "claim", "1")
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "not claimable"))
	require.Contains(t, err.Error(), "HTTP 409")
}

func TestQuestIDValidated(t *testing.T) {
	_, err := execute(t, "quest", "get", "first")
	require.Error(t, err)
}
