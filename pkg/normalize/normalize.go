// Package normalize reconciles network-captured candidates with page
// extraction into one canonical submission record, applying a fixed
// precedence order to every field.
package normalize

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gitgrind/gitgrind/pkg/extract"
	"github.com/gitgrind/gitgrind/pkg/intercept"
	"github.com/gitgrind/gitgrind/pkg/record"
)

// Enrichment is the metadata backfilled by a secondary fetch of the problem
// page. All fields are optional; a failed fetch yields the zero value.
type Enrichment struct {
	Title         string
	Difficulty    string
	Description   string
	ProblemNumber string
}

// Enricher performs the best-effort problem-page fetch. Implementations must
// never return an error that aborts a push; missing data is an empty
// Enrichment.
type Enricher interface {
	Enrich(ctx context.Context, problemURL string) Enrichment
}

// Result is a normalized submission plus its acceptance verdict. Auto-push
// paths must gate on Accepted; manual pushes may force past it.
type Result struct {
	Record   *record.SubmissionRecord
	Accepted bool
}

// Normalizer merges candidates and page snapshots. It remembers the last
// request-captured language across calls, since the site often submits the
// code and polls the verdict on separate endpoints.
type Normalizer struct {
	siteBase   string
	scanBudget int
	enricher   Enricher

	mu          sync.Mutex
	lastReqLang string
	now         func() time.Time
}

// New creates a Normalizer. budget <= 0 uses DefaultScanBudget.
func New(siteBase string, budget int, enricher Enricher) *Normalizer {
	if budget <= 0 {
		budget = DefaultScanBudget
	}
	return &Normalizer{
		siteBase:   siteBase,
		scanBudget: budget,
		enricher:   enricher,
		now:        time.Now,
	}
}

var slugValueRe = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// FromCandidate normalizes a network candidate, filling gaps from the page
// snapshot (which may be nil when none was captured).
func (n *Normalizer) FromCandidate(ctx context.Context, cand *intercept.Candidate, snap *extract.Snapshot) *Result {
	var reqPayload, respPayload any
	if len(cand.RequestBody) > 0 {
		_ = json.Unmarshal(cand.RequestBody, &reqPayload)
	}
	_ = json.Unmarshal(cand.ResponseBody, &respPayload)

	accepted, source := n.acceptance(respPayload)

	rec := &record.SubmissionRecord{}

	// Rule 1: code from the submission request body, else the page.
	if code, ok := findString(reqPayload, n.scanBudget, isCodeKey); ok {
		rec.Code = code
	} else if source != nil {
		if code, ok := fieldString(source, isCodeKey); ok {
			rec.Code = code
		}
	}
	if rec.Code == "" && snap != nil {
		if code, ok := extract.Code(snap); ok {
			rec.Code = code
		}
	}

	// Rule 2: language precedence.
	rec.Language = n.language(reqPayload, source, snap, rec.Code)

	// Rule 3: metadata from payloads, then the page.
	n.fillMetadata(rec, source, respPayload, reqPayload, snap)

	// Performance metrics live next to the status when present.
	if source != nil {
		if rt, ok := fieldString(source, isRuntimeKey); ok {
			rec.Runtime = rt
		}
		if mem, ok := fieldString(source, isMemoryKey); ok {
			rec.Memory = mem
		}
	}

	n.finishRecord(ctx, rec)
	return &Result{Record: rec, Accepted: accepted}
}

// FromPage normalizes from a page snapshot alone, for the DOM-poll path when
// no network candidate was observed. Acceptance comes from the rendered
// result state.
func (n *Normalizer) FromPage(ctx context.Context, snap *extract.Snapshot) *Result {
	rec := &record.SubmissionRecord{}

	if code, ok := extract.Code(snap); ok {
		rec.Code = code
	}
	rec.Language = n.language(nil, nil, snap, rec.Code)

	if slug, ok := extract.Slug(snap); ok {
		rec.Slug = slug
	}
	if title, ok := extract.Title(snap); ok {
		rec.Title = title
	}
	if num, ok := extract.ProblemNumber(snap); ok {
		rec.ProblemNumber = num
	}
	if diff, ok := extract.Difficulty(snap); ok {
		rec.Difficulty = diff
	}
	if desc, ok := extract.Description(snap); ok {
		rec.Description = desc
	}

	n.finishRecord(ctx, rec)
	return &Result{Record: rec, Accepted: extract.IsAccepted(snap)}
}

// acceptance applies the three recognized response shapes in order: the
// per-test-case array (last accepted element wins), the single-result shape,
// then the generic bounded object search. The returned map is the object that
// carried the verdict, used as a metadata source.
func (n *Normalizer) acceptance(respPayload any) (bool, map[string]any) {
	if respPayload == nil {
		return false, nil
	}
	if obj, ok := findAcceptedInArrays(respPayload, n.scanBudget); ok {
		return true, obj
	}
	if obj, ok := findAcceptedSingle(respPayload, n.scanBudget); ok {
		return true, obj
	}
	if obj, ok := findSubmissionObject(respPayload, n.scanBudget); ok {
		return true, obj
	}
	return false, nil
}

// language applies precedence rule 2: request body, then a remembered
// request-captured language, then the response payload, then page extraction,
// then static detection over the code, else unknown.
func (n *Normalizer) language(reqPayload any, source map[string]any, snap *extract.Snapshot, code string) string {
	if raw, ok := findString(reqPayload, n.scanBudget, isLanguageKey); ok {
		if lang := record.NormalizeLanguage(raw); lang != record.LanguageUnknown {
			n.mu.Lock()
			n.lastReqLang = lang
			n.mu.Unlock()
			return lang
		}
	}
	n.mu.Lock()
	remembered := n.lastReqLang
	n.mu.Unlock()
	if remembered != "" {
		return remembered
	}

	if source != nil {
		if raw, ok := fieldString(source, isLanguageKey); ok {
			if lang := record.NormalizeLanguage(raw); lang != record.LanguageUnknown {
				return lang
			}
		}
	}

	if snap != nil {
		if lang := extract.Language(snap); lang != record.LanguageUnknown {
			return lang
		}
	}
	if lang := record.DetectLanguage(code); lang != record.LanguageUnknown {
		return lang
	}
	return record.LanguageUnknown
}

// fillMetadata resolves title/slug/number/difficulty/description with the
// payload-first precedence.
func (n *Normalizer) fillMetadata(rec *record.SubmissionRecord, source map[string]any, respPayload, reqPayload any, snap *extract.Snapshot) {
	for _, payload := range []any{source, respPayload, reqPayload} {
		if payload == nil {
			continue
		}
		if rec.Slug == "" {
			if raw, ok := findString(payload, n.scanBudget, isSlugKey); ok && slugValueRe.MatchString(raw) {
				rec.Slug = raw
			}
		}
		if rec.Title == "" {
			if title, ok := findString(payload, n.scanBudget, isTitleKey); ok {
				rec.Title = title
			}
		}
		if rec.ProblemNumber == "" {
			if num, ok := findString(payload, n.scanBudget, isProblemNumberKey); ok {
				rec.ProblemNumber = num
			}
		}
		if rec.Difficulty == "" {
			if diff, ok := findString(payload, n.scanBudget, isDifficultyKey); ok {
				rec.Difficulty = normalizeDifficulty(diff)
			}
		}
	}

	if snap != nil {
		if rec.Slug == "" {
			if slug, ok := extract.Slug(snap); ok {
				rec.Slug = slug
			}
		}
		if rec.Title == "" {
			if title, ok := extract.Title(snap); ok {
				rec.Title = title
			}
		}
		if rec.ProblemNumber == "" {
			if num, ok := extract.ProblemNumber(snap); ok {
				rec.ProblemNumber = num
			}
		}
		if rec.Difficulty == "" {
			if diff, ok := extract.Difficulty(snap); ok {
				rec.Difficulty = diff
			}
		}
		if rec.Description == "" {
			if desc, ok := extract.Description(snap); ok {
				rec.Description = desc
			}
		}
	}
}

// finishRecord runs enrichment for still-missing metadata and applies the
// slug-derived fallbacks.
func (n *Normalizer) finishRecord(ctx context.Context, rec *record.SubmissionRecord) {
	needsEnrichment := rec.Slug != "" &&
		(rec.Title == "" || rec.Difficulty == "" || rec.Description == "" || rec.ProblemNumber == "")
	if needsEnrichment && n.enricher != nil {
		enr := n.enricher.Enrich(ctx, record.ProblemURL(n.siteBase, rec.Slug))
		if rec.Title == "" {
			rec.Title = enr.Title
		}
		if rec.Difficulty == "" {
			rec.Difficulty = enr.Difficulty
		}
		if rec.Description == "" {
			rec.Description = enr.Description
		}
		if rec.ProblemNumber == "" {
			rec.ProblemNumber = enr.ProblemNumber
		}
	}

	rec.Finalize(n.siteBase, n.now())

	// Titles often arrive with the ordinal baked in; mine the number out.
	if rec.ProblemNumber == "" {
		if m := titleOrdinalRe.FindStringSubmatch(rec.Title); m != nil {
			rec.ProblemNumber = m[1]
		}
	}
}

var titleOrdinalRe = regexp.MustCompile(`^(\d+)\.\s+`)

// fieldString reads a direct field of obj (no traversal).
func fieldString(obj map[string]any, match func(string) bool) (string, bool) {
	for key, value := range obj {
		if !match(key) {
			continue
		}
		if s, ok := stringValue(value); ok {
			return s, true
		}
	}
	return "", false
}

func normalizeDifficulty(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "easy", "1":
		return record.DifficultyEasy
	case "medium", "2":
		return record.DifficultyMedium
	case "hard", "3":
		return record.DifficultyHard
	}
	return ""
}
