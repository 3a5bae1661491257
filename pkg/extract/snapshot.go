// Package extract pulls problem metadata and solution code out of captured
// page state. The source site's DOM structure is unversioned and changes
// without notice, so every operation is an ordered chain of best-effort
// heuristics that degrades to "no value", never a hard failure.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// EditorModel mirrors the embedded code editor's in-memory document: the
// language id it reports and the exact buffer contents, whitespace preserved.
type EditorModel struct {
	LanguageID string `json:"languageId"`
	Value      string `json:"value"`
}

// Snapshot is a point-in-time capture of page state: the rendered HTML, the
// page URL, any page-exposed global language, the embedded editor models, and
// the site-local storage map.
type Snapshot struct {
	URL            string            `json:"url"`
	HTML           string            `json:"html"`
	GlobalLanguage string            `json:"globalLanguage,omitempty"`
	Editors        []EditorModel     `json:"editors,omitempty"`
	LocalStorage   map[string]string `json:"localStorage,omitempty"`

	doc *goquery.Document
}

// Doc lazily parses the snapshot HTML. Parse failures yield an empty document
// so selector chains simply find nothing.
func (s *Snapshot) Doc() *goquery.Document {
	if s.doc != nil {
		return s.doc
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s.HTML))
	if err != nil {
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(""))
	}
	s.doc = doc
	return s.doc
}

// FromDocument wraps an already-parsed document (used by enrichment, which
// fetches the problem page itself).
func FromDocument(url string, doc *goquery.Document) *Snapshot {
	return &Snapshot{URL: url, doc: doc}
}

// strategy is one heuristic step: it inspects the snapshot and either
// produces a value or passes.
type strategy func(*Snapshot) (string, bool)

// firstMatch evaluates strategies in order and returns the first hit.
func firstMatch(s *Snapshot, chain ...strategy) (string, bool) {
	for _, step := range chain {
		if v, ok := step(s); ok {
			return v, true
		}
	}
	return "", false
}

// collapseSpace normalizes runs of whitespace to single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
