package commit

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitgrind/gitgrind/pkg/github"
	"github.com/gitgrind/gitgrind/pkg/record"
)

// fakeContentsAPI is an in-memory stand-in for the repos/contents endpoints,
// enforcing the revision-token contract: overwrites must present the current
// sha.
type fakeContentsAPI struct {
	mu       sync.Mutex
	files    map[string]fakeFile
	puts     []string // paths in write order
	created  []string // repositories created via POST /user/repos
	repoGone bool     // GET /repos/... returns 404 until created
	shaSeq   int
}

type fakeFile struct {
	sha     string
	content []byte
}

func newFakeContentsAPI() *fakeContentsAPI {
	return &fakeContentsAPI{files: make(map[string]fakeFile)}
}

func (f *fakeContentsAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/repos/o/r":
			if f.repoGone {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write([]byte(`{"name": "r"}`))

		case r.Method == http.MethodPost && r.URL.Path == "/user/repos":
			var payload map[string]any
			json.NewDecoder(r.Body).Decode(&payload)
			f.created = append(f.created, payload["name"].(string))
			f.repoGone = false
			w.WriteHeader(http.StatusCreated)

		case strings.HasPrefix(r.URL.Path, "/repos/o/r/contents/"):
			path := strings.TrimPrefix(r.URL.Path, "/repos/o/r/contents/")
			switch r.Method {
			case http.MethodGet:
				file, ok := f.files[path]
				if !ok {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				json.NewEncoder(w).Encode(map[string]string{
					"sha":     file.sha,
					"content": base64.StdEncoding.EncodeToString(file.content),
				})
			case http.MethodPut:
				var payload struct {
					Content string `json:"content"`
					SHA     string `json:"sha"`
				}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
				existing, exists := f.files[path]
				if exists && payload.SHA != existing.sha {
					w.WriteHeader(http.StatusConflict)
					return
				}
				if !exists && payload.SHA != "" {
					w.WriteHeader(http.StatusUnprocessableEntity)
					return
				}
				content, err := base64.StdEncoding.DecodeString(payload.Content)
				require.NoError(t, err)
				f.shaSeq++
				f.files[path] = fakeFile{sha: fmt.Sprintf("sha-%d", f.shaSeq), content: content}
				f.puts = append(f.puts, path)
				w.Write([]byte(`{}`))
			}

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func testRecord() *record.SubmissionRecord {
	return &record.SubmissionRecord{
		Title:         "49. Group Anagrams",
		Slug:          "group-anagrams",
		Language:      "python3",
		Code:          "class Solution:\n    def groupAnagrams(self, strs):\n        return []",
		Runtime:       "52ms",
		Memory:        "44.1MB",
		Timestamp:     1700000000000,
		URL:           "https://practice.example.com/problems/group-anagrams/",
		ProblemNumber: "49",
		Difficulty:    record.DifficultyMedium,
		Description:   "<p>Group the anagrams together.</p>",
	}
}

func newTestEngine(t *testing.T, api *fakeContentsAPI) (*Engine, github.RepoConfig) {
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	client := github.NewClient(srv.URL, srv.Client())
	return NewEngine(client, "solutions", nil), github.RepoConfig{Owner: "o", Name: "r"}
}

func TestFolderDeterminism(t *testing.T) {
	rec := &record.SubmissionRecord{ProblemNumber: "49", Slug: "group-anagrams", Language: "python3"}
	assert.Equal(t, "0049-group-anagrams", Folder(rec))
	assert.Equal(t, "0049-group-anagrams.py", CodeFileName(rec))

	noNum := &record.SubmissionRecord{Slug: "two-sum", Language: "golang"}
	assert.Equal(t, "two-sum", Folder(noNum))
	assert.Equal(t, "two-sum.go", CodeFileName(noNum))

	wide := &record.SubmissionRecord{ProblemNumber: "12345", Slug: "big", Language: "unknown"}
	assert.Equal(t, "12345-big", Folder(wide))
	assert.Equal(t, "12345-big.txt", CodeFileName(wide))
}

func TestCommitWritesReadmeBeforeCode(t *testing.T) {
	api := newFakeContentsAPI()
	engine, repo := newTestEngine(t, api)

	require.NoError(t, engine.Commit(context.Background(), "tok", repo, testRecord()))

	require.Len(t, api.puts, 2)
	assert.Equal(t, "solutions/0049-group-anagrams/README.md", api.puts[0])
	assert.Equal(t, "solutions/0049-group-anagrams/0049-group-anagrams.py", api.puts[1])
}

func TestCommitIdempotent(t *testing.T) {
	api := newFakeContentsAPI()
	engine, repo := newTestEngine(t, api)
	rec := testRecord()

	require.NoError(t, engine.Commit(context.Background(), "tok", repo, rec))
	require.NoError(t, engine.Commit(context.Background(), "tok", repo, rec),
		"second commit must re-read revision tokens and succeed")

	// Round-trip: remote content equals freshly formatted content.
	readme := api.files["solutions/0049-group-anagrams/README.md"]
	assert.Equal(t, string(FormatReadme(rec)), string(readme.content))
	code := api.files["solutions/0049-group-anagrams/0049-group-anagrams.py"]
	assert.Equal(t, string(FormatCode(rec)), string(code.content))

	require.Len(t, api.puts, 4)
}

func TestCommitRejectsIneligibleRecord(t *testing.T) {
	api := newFakeContentsAPI()
	engine, repo := newTestEngine(t, api)

	err := engine.Commit(context.Background(), "tok", repo, &record.SubmissionRecord{
		Slug: "two-sum",
		Code: "pass",
	})
	require.Error(t, err)
	assert.Empty(t, api.puts, "ineligible records must not reach the network")
}

func TestEnsureRepositoryCreatesOnNotFound(t *testing.T) {
	api := newFakeContentsAPI()
	api.repoGone = true
	engine, repo := newTestEngine(t, api)

	require.NoError(t, engine.EnsureRepository(context.Background(), "tok", repo))
	assert.Equal(t, []string{"r"}, api.created)

	// Second call finds the repository and creates nothing.
	require.NoError(t, engine.EnsureRepository(context.Background(), "tok", repo))
	assert.Len(t, api.created, 1)
}

func TestFormatReadme(t *testing.T) {
	out := string(FormatReadme(testRecord()))

	assert.Contains(t, out, "# [49. Group Anagrams](https://practice.example.com/problems/group-anagrams/)")
	assert.Contains(t, out, "**Difficulty:** Medium")
	assert.Contains(t, out, "<p>Group the anagrams together.</p>")
}

func TestFormatReadmePrependsNumber(t *testing.T) {
	rec := testRecord()
	rec.Title = "Group Anagrams"
	out := string(FormatReadme(rec))
	assert.Contains(t, out, "# [49. Group Anagrams]")
}

func TestFormatCodeHeader(t *testing.T) {
	out := string(FormatCode(testRecord()))

	lines := strings.Split(out, "\n")
	assert.Equal(t, "# 49. Group Anagrams", lines[0])
	assert.Equal(t, "# Runtime: 52ms, Memory: 44.1MB", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "# Accepted: 2023-11-14T"), lines[2])
	assert.Contains(t, out, "class Solution:")

	// C-style languages get C-style headers.
	rec := testRecord()
	rec.Language = "golang"
	out = string(FormatCode(rec))
	assert.True(t, strings.HasPrefix(out, "// 49. Group Anagrams\n"), out)
}
