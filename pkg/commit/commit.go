// Package commit persists a submission record as two files in the destination
// repository: a README describing the problem and the solution source itself,
// with optimistic-concurrency overwrites.
package commit

import (
	"context"
	"fmt"
	"path"

	gerrors "github.com/gitgrind/gitgrind/pkg/errors"
	"github.com/gitgrind/gitgrind/pkg/github"
	"github.com/gitgrind/gitgrind/pkg/logging"
	"github.com/gitgrind/gitgrind/pkg/record"
)

// Engine owns no persistent state: each call is a pure function of the
// credentials, repo config, and record, plus remote state fetched per call.
type Engine struct {
	client   *github.Client
	basePath string
	logger   *logging.Logger
}

// NewEngine creates a commit engine writing under basePath within the
// repository ("" commits at the repository root).
func NewEngine(client *github.Client, basePath string, logger *logging.Logger) *Engine {
	return &Engine{client: client, basePath: basePath, logger: logger}
}

// Folder computes the deterministic per-problem folder name:
// "{0000-padded-number-}{slug}", or the bare slug without a number.
func Folder(rec *record.SubmissionRecord) string {
	if rec.ProblemNumber == "" {
		return rec.Slug
	}
	num := rec.ProblemNumber
	for len(num) < 4 {
		num = "0" + num
	}
	return num + "-" + rec.Slug
}

// CodeFileName is "{folder-basename}.{ext}" with the extension derived from
// the language table.
func CodeFileName(rec *record.SubmissionRecord) string {
	return Folder(rec) + "." + record.ExtensionFor(rec.Language)
}

// paths returns (readmePath, codePath) under the engine's base path.
func (e *Engine) paths(rec *record.SubmissionRecord) (string, string) {
	folder := Folder(rec)
	return path.Join(e.basePath, folder, "README.md"),
		path.Join(e.basePath, folder, CodeFileName(rec))
}

// EnsureRepository verifies the destination repository exists, creating a
// private one with the configured name when it does not. Any failure other
// than a clean "not found" is a hard failure.
func (e *Engine) EnsureRepository(ctx context.Context, token string, repo github.RepoConfig) error {
	exists, err := e.client.RepoExists(ctx, token, repo)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	e.logger.Info(logging.CategoryCommit, "repo_create", "creating destination repository",
		map[string]any{"owner": repo.Owner, "name": repo.Name})
	return e.client.CreateRepo(ctx, token, repo.Name)
}

// Commit writes the README and then the code file. The order is fixed: a
// reader that observes a README for a problem may assume the code write was
// attempted next. Failures are not rolled back; re-invoking Commit with the
// same record is idempotent and completes both writes.
func (e *Engine) Commit(ctx context.Context, token string, repo github.RepoConfig, rec *record.SubmissionRecord) error {
	if !rec.Eligible() {
		return gerrors.New(gerrors.ErrCodeRecordInvalid, "record not eligible for commit").
			WithContext("slug", rec.Slug)
	}

	readmePath, codePath := e.paths(rec)

	if err := e.writeFile(ctx, token, repo, readmePath,
		fmt.Sprintf("Add README for %s", rec.Slug), FormatReadme(rec)); err != nil {
		return err
	}
	if err := e.writeFile(ctx, token, repo, codePath,
		fmt.Sprintf("Add solution for %s (%s)", rec.Slug, rec.Language), FormatCode(rec)); err != nil {
		return err
	}

	e.logger.Info(logging.CategoryCommit, "commit_done", "committed submission",
		map[string]any{"slug": rec.Slug, "folder": Folder(rec)})
	return nil
}

// writeFile performs the read-modify-write against one path: fetch the
// current revision token, then PUT with it so the remote store rejects stale
// writes instead of silently clobbering.
func (e *Engine) writeFile(ctx context.Context, token string, repo github.RepoConfig, filePath, message string, content []byte) error {
	existing, err := e.client.GetContents(ctx, token, repo, filePath)
	if err != nil {
		return err
	}
	sha := ""
	if existing != nil {
		sha = existing.SHA
	}
	return e.client.PutContents(ctx, token, repo, filePath, message, content, sha)
}
