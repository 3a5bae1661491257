// Package record defines the canonical submission record produced by the
// extraction pipeline and consumed by the commit engine.
package record

import (
	"strings"
	"time"
)

// MinPlausibleCodeLength is the shortest solution body treated as real code.
// Anything at or below this is selector noise ("pass", a stray token, an
// empty editor placeholder).
const MinPlausibleCodeLength = 10

// MetricUnavailable is the sentinel for missing runtime/memory metrics.
const MetricUnavailable = "n/a"

// Difficulty labels used by the source site.
const (
	DifficultyEasy   = "Easy"
	DifficultyMedium = "Medium"
	DifficultyHard   = "Hard"
)

// SubmissionRecord is the canonical unit of work: one accepted solution,
// normalized from network capture and/or page extraction.
type SubmissionRecord struct {
	Title         string `json:"title"`
	Slug          string `json:"slug"`
	Language      string `json:"language"`
	Code          string `json:"code"`
	Runtime       string `json:"runtime"`
	Memory        string `json:"memory"`
	Timestamp     int64  `json:"timestamp"` // ms since epoch
	URL           string `json:"url,omitempty"`
	ProblemNumber string `json:"problemNumber,omitempty"`
	Difficulty    string `json:"difficulty,omitempty"`
	Description   string `json:"description,omitempty"`
}

// HasPlausibleCode reports whether the code body is non-empty and long enough
// to be a real solution.
func (r *SubmissionRecord) HasPlausibleCode() bool {
	return r != nil && len(strings.TrimSpace(r.Code)) > MinPlausibleCodeLength
}

// Eligible reports whether the record may be committed: plausible code plus a
// slug to key the destination path. Acceptance gating for automatic pushes is
// the normalizer's job, not the record's.
func (r *SubmissionRecord) Eligible() bool {
	return r.HasPlausibleCode() && r.Slug != ""
}

// Finalize fills derived fields: a slug-based title when none was extracted,
// the canonical problem URL, metric sentinels, and the acceptance timestamp.
func (r *SubmissionRecord) Finalize(siteBase string, now time.Time) {
	if r.Title == "" {
		r.Title = TitleFromSlug(r.Slug)
	}
	if r.URL == "" && r.Slug != "" {
		r.URL = ProblemURL(siteBase, r.Slug)
	}
	if r.Runtime == "" {
		r.Runtime = MetricUnavailable
	}
	if r.Memory == "" {
		r.Memory = MetricUnavailable
	}
	if r.Language == "" {
		r.Language = LanguageUnknown
	}
	if r.Timestamp == 0 {
		r.Timestamp = now.UnixMilli()
	}
}

// AcceptedAt returns the acceptance time carried by the record.
func (r *SubmissionRecord) AcceptedAt() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// TitleFromSlug title-cases a slug: "group-anagrams" -> "Group Anagrams".
func TitleFromSlug(slug string) string {
	if slug == "" {
		return ""
	}
	parts := strings.Split(slug, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// ProblemURL derives the canonical problem page URL from a slug.
func ProblemURL(siteBase, slug string) string {
	return strings.TrimRight(siteBase, "/") + "/problems/" + slug + "/"
}
