package record

import (
	"testing"
	"time"
)

func TestHasPlausibleCode(t *testing.T) {
	cases := []struct {
		code string
		want bool
	}{
		{"", false},
		{"pass", false},
		{"          ", false},
		{"x = 1 + 2;", false}, // exactly 10 chars, still noise
		{"def two_sum(nums, target): return []", true},
	}
	for _, tc := range cases {
		r := &SubmissionRecord{Code: tc.code}
		if got := r.HasPlausibleCode(); got != tc.want {
			t.Errorf("HasPlausibleCode(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestEligibleRequiresSlug(t *testing.T) {
	r := &SubmissionRecord{Code: "def two_sum(nums, target): return []"}
	if r.Eligible() {
		t.Error("record without slug must not be eligible")
	}
	r.Slug = "two-sum"
	if !r.Eligible() {
		t.Error("record with slug and plausible code must be eligible")
	}
}

func TestFinalizeDerivesFallbacks(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	r := &SubmissionRecord{Slug: "group-anagrams", Code: "class Solution: ..."}
	r.Finalize("https://practice.example.com", now)

	if r.Title != "Group Anagrams" {
		t.Errorf("title fallback = %q", r.Title)
	}
	if r.URL != "https://practice.example.com/problems/group-anagrams/" {
		t.Errorf("url fallback = %q", r.URL)
	}
	if r.Runtime != MetricUnavailable || r.Memory != MetricUnavailable {
		t.Errorf("metric sentinels not applied: %q / %q", r.Runtime, r.Memory)
	}
	if r.Language != LanguageUnknown {
		t.Errorf("language fallback = %q", r.Language)
	}
	if r.Timestamp != now.UnixMilli() {
		t.Errorf("timestamp = %d", r.Timestamp)
	}
}

func TestFinalizeKeepsExistingValues(t *testing.T) {
	r := &SubmissionRecord{
		Slug:      "two-sum",
		Title:     "1. Two Sum",
		Language:  "python",
		Runtime:   "52ms",
		Memory:    "44.1MB",
		Timestamp: 1700000000000,
		URL:       "https://practice.example.com/problems/two-sum/",
	}
	r.Finalize("https://practice.example.com", time.Now())

	if r.Title != "1. Two Sum" || r.Runtime != "52ms" || r.Memory != "44.1MB" {
		t.Errorf("Finalize clobbered populated fields: %+v", r)
	}
	if r.Timestamp != 1700000000000 {
		t.Errorf("Finalize clobbered timestamp: %d", r.Timestamp)
	}
}

func TestTitleFromSlug(t *testing.T) {
	cases := map[string]string{
		"two-sum":                  "Two Sum",
		"group-anagrams":           "Group Anagrams",
		"best-time-to-buy-a-stock": "Best Time To Buy A Stock",
		"":                         "",
	}
	for slug, want := range cases {
		if got := TitleFromSlug(slug); got != want {
			t.Errorf("TitleFromSlug(%q) = %q, want %q", slug, got, want)
		}
	}
}
