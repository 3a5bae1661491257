package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gerrors "github.com/gitgrind/gitgrind/pkg/errors"
)

func TestRepoExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/repos/octocat/solutions":
			w.Write([]byte(`{"name": "solutions"}`))
		case "/repos/octocat/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()
	c := NewClient(srv.URL, srv.Client())

	ok, err := c.RepoExists(context.Background(), "tok-123", RepoConfig{Owner: "octocat", Name: "solutions"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.RepoExists(context.Background(), "tok-123", RepoConfig{Owner: "octocat", Name: "missing"})
	require.NoError(t, err, "a clean 404 is not an error")
	assert.False(t, ok)

	_, err = c.RepoExists(context.Background(), "tok-123", RepoConfig{Owner: "octocat", Name: "broken"})
	require.Error(t, err)
	assert.Equal(t, gerrors.ErrCodeRemoteAPI, gerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "500")
}

func TestCreateRepoIsPrivate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/user/repos", r.URL.Path)
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "solutions", payload["name"])
		assert.Equal(t, true, payload["private"])
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	require.NoError(t, c.CreateRepo(context.Background(), "tok", "solutions"))
}

func TestGetContents(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("# Two Sum\n"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/o/r/contents/solutions/0001-two-sum/README.md":
			json.NewEncoder(w).Encode(map[string]string{
				"sha":     "abc123",
				"content": encoded,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	c := NewClient(srv.URL, srv.Client())
	repo := RepoConfig{Owner: "o", Name: "r"}

	file, err := c.GetContents(context.Background(), "tok", repo, "solutions/0001-two-sum/README.md")
	require.NoError(t, err)
	require.NotNil(t, file)
	assert.Equal(t, "abc123", file.SHA)
	assert.Equal(t, "# Two Sum\n", string(file.Content))

	missing, err := c.GetContents(context.Background(), "tok", repo, "solutions/none/README.md")
	require.NoError(t, err, "absent files are not an error")
	assert.Nil(t, missing)
}

func TestPutContentsIncludesRevisionToken(t *testing.T) {
	var payloads []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		payloads = append(payloads, payload)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	c := NewClient(srv.URL, srv.Client())
	repo := RepoConfig{Owner: "o", Name: "r", DefaultBranch: "main"}

	// Fresh file: no sha in the request.
	require.NoError(t, c.PutContents(context.Background(), "tok", repo,
		"solutions/0001-two-sum/README.md", "add readme", []byte("hello"), ""))
	// Overwrite: sha present for the atomic replace.
	require.NoError(t, c.PutContents(context.Background(), "tok", repo,
		"solutions/0001-two-sum/README.md", "update readme", []byte("hello again"), "abc123"))

	require.Len(t, payloads, 2)
	_, hasSHA := payloads[0]["sha"]
	assert.False(t, hasSHA, "create must not send a revision token")
	assert.Equal(t, "abc123", payloads[1]["sha"])
	assert.Equal(t, "main", payloads[1]["branch"])

	decoded, err := base64.StdEncoding.DecodeString(payloads[0]["content"].(string))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(decoded))
}

func TestGetUsername(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/user", r.URL.Path)
		w.Write([]byte(`{"login": "octocat"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	login, err := c.GetUsername(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "octocat", login)
}
