package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// descriptionSelectors are the containers that have held the problem
// statement across site revisions, newest first.
var descriptionSelectors = []string{
	`[data-track-load="description_content"]`,
	".question-content",
	`[class*="question-content"]`,
	`[class*="description"]`,
}

// trailingSectionRe strips the "Topics"/"Tags"/"Recommended" blocks the site
// appends after the actual statement.
var trailingSectionRe = regexp.MustCompile(`(?is)<(?:div|section|h[2-4])[^>]*>\s*(?:Topics|Tags|Related Topics|Recommended)\b.*$`)

// Description returns the cleaned HTML body of the problem statement.
// Candidates shorter than minDescriptionLength, or ones that look like a
// submission-result panel rather than a statement, are rejected.
func Description(s *Snapshot) (string, bool) {
	for _, selector := range descriptionSelectors {
		var html string
		s.Doc().Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			text := collapseSpace(sel.Text())
			if len(text) < minDescriptionLength {
				return true
			}
			if looksLikeResultPanel(text) {
				return true
			}
			if h, err := sel.Html(); err == nil {
				html = h
				return false
			}
			return true
		})
		if html != "" {
			return CleanDescriptionHTML(html), true
		}
	}
	return "", false
}

// looksLikeResultPanel flags text that reads like a submission result rather
// than a problem statement.
func looksLikeResultPanel(text string) bool {
	lowered := strings.ToLower(text)
	return strings.Contains(lowered, "submission") && strings.Contains(lowered, "accepted")
}

// CleanDescriptionHTML strips hint/tag accordions and trailing topic sections
// from a statement fragment. Input that fails to re-parse is returned with
// only the regex cleanup applied.
func CleanDescriptionHTML(html string) string {
	html = trailingSectionRe.ReplaceAllString(html, "")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<div id=\"gg-root\">" + html + "</div>"))
	if err != nil {
		return strings.TrimSpace(html)
	}
	root := doc.Find("#gg-root")

	// Hint and topic accordions carry no statement content.
	root.Find("details").Each(func(_ int, sel *goquery.Selection) {
		summary := strings.ToLower(collapseSpace(sel.Find("summary").Text()))
		if strings.Contains(summary, "hint") || strings.Contains(summary, "topic") || strings.Contains(summary, "tag") {
			sel.Remove()
		}
	})
	root.Find(`[class*="accordion"], [class*="hint"]`).Remove()

	cleaned, err := root.Html()
	if err != nil {
		return strings.TrimSpace(html)
	}
	return strings.TrimSpace(cleaned)
}
