package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/gitgrind/gitgrind/pkg/record"
)

// minDescriptionLength filters out stubs and result panels masquerading as
// problem statements.
const minDescriptionLength = 100

var (
	ordinalTitleRe = regexp.MustCompile(`^\d+\.\s+\S`)
	titleNumberRe  = regexp.MustCompile(`^(\d+)\.\s+`)
	slugPathRe     = regexp.MustCompile(`/problems?/([a-z0-9][a-z0-9-]*)`)
	passedRatioRe  = regexp.MustCompile(`(?i)passed[^0-9]{0,12}(\d+)\s*/\s*(\d+)`)
	testCasesRe    = regexp.MustCompile(`(?i)\d+\s*/\s*\d+\s+test\s*cases?`)
)

// localStorage keys checked for a persisted language preference, most
// specific first.
var languageStorageKeys = []string{"global_lang", "preferred_language", "lang"}

// successColors are the inline colors the site uses for the green "Accepted"
// result header.
var successColors = []string{"#00af9b", "#2cbb5d", "rgb(0, 175, 155)", "rgb(44, 187, 93)"}

// Title returns the problem title, preferring headings that carry a leading
// ordinal ("49. Group Anagrams") over bare ones.
func Title(s *Snapshot) (string, bool) {
	return firstMatch(s,
		headingTitle(`[data-cy="question-title"]`),
		headingTitle(`.question-prompt h1, .question-title`),
		headingTitle("h1"),
		pageTitle,
	)
}

// headingTitle builds a strategy that scans selector matches and returns the
// first non-empty text, preferring entries with a leading ordinal.
func headingTitle(selector string) strategy {
	return func(s *Snapshot) (string, bool) {
		var plain, numbered string
		s.Doc().Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			text := collapseSpace(sel.Text())
			if text == "" {
				return true
			}
			if ordinalTitleRe.MatchString(text) {
				numbered = text
				return false
			}
			if plain == "" {
				plain = text
			}
			return true
		})
		if numbered != "" {
			return numbered, true
		}
		if plain != "" {
			return plain, true
		}
		return "", false
	}
}

// pageTitle falls back to the <title> tag with the site-name suffix stripped.
func pageTitle(s *Snapshot) (string, bool) {
	text := collapseSpace(s.Doc().Find("title").First().Text())
	if text == "" {
		return "", false
	}
	for _, sep := range []string{" - ", " | ", " – "} {
		if idx := strings.Index(text, sep); idx > 0 {
			text = text[:idx]
			break
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	return text, true
}

// Slug derives the problem slug from the snapshot URL path.
func Slug(s *Snapshot) (string, bool) {
	m := slugPathRe.FindStringSubmatch(s.URL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ProblemNumber returns the leading ordinal of the extracted title, if any.
func ProblemNumber(s *Snapshot) (string, bool) {
	title, ok := Title(s)
	if !ok {
		return "", false
	}
	m := titleNumberRe.FindStringSubmatch(title)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Language identifies the solution language. Chain: page-exposed global
// state, persisted local preference, editor language id, visible language
// selector, static signatures over the code itself.
func Language(s *Snapshot) string {
	if v, ok := firstMatch(s,
		globalLanguage,
		storedLanguage,
		editorLanguage,
		selectorLanguage,
		detectedLanguage,
	); ok {
		return v
	}
	return record.LanguageUnknown
}

func globalLanguage(s *Snapshot) (string, bool) {
	if lang := record.NormalizeLanguage(s.GlobalLanguage); lang != record.LanguageUnknown {
		return lang, true
	}
	return "", false
}

func storedLanguage(s *Snapshot) (string, bool) {
	for _, key := range languageStorageKeys {
		raw, ok := s.LocalStorage[key]
		if !ok {
			continue
		}
		// Values are often JSON-quoted ("\"python3\"").
		raw = strings.Trim(strings.TrimSpace(raw), `"`)
		if lang := record.NormalizeLanguage(raw); lang != record.LanguageUnknown {
			return lang, true
		}
	}
	return "", false
}

func editorLanguage(s *Snapshot) (string, bool) {
	for _, model := range s.Editors {
		if lang := record.NormalizeLanguage(model.LanguageID); lang != record.LanguageUnknown {
			return lang, true
		}
	}
	return "", false
}

func selectorLanguage(s *Snapshot) (string, bool) {
	var found string
	s.Doc().Find(`[data-cy="lang-select"], .lang-select, button[id*="headlessui"], [class*="language-select"]`).
		EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			text := collapseSpace(sel.Text())
			if lang := record.NormalizeLanguage(text); lang != record.LanguageUnknown {
				found = lang
				return false
			}
			return true
		})
	if found != "" {
		return found, true
	}
	return "", false
}

func detectedLanguage(s *Snapshot) (string, bool) {
	code, ok := Code(s)
	if !ok {
		return "", false
	}
	if lang := record.DetectLanguage(code); lang != record.LanguageUnknown {
		return lang, true
	}
	return "", false
}

// Code returns the solution source. The editor's in-memory value is the most
// reliable source since it preserves exact whitespace; textareas and generic
// code containers are progressively lossier fallbacks.
func Code(s *Snapshot) (string, bool) {
	return firstMatch(s, editorCode, textareaCode, containerCode)
}

func plausibleCode(code string) bool {
	return len(strings.TrimSpace(code)) > record.MinPlausibleCodeLength
}

func editorCode(s *Snapshot) (string, bool) {
	for _, model := range s.Editors {
		if plausibleCode(model.Value) {
			return model.Value, true
		}
	}
	return "", false
}

func textareaCode(s *Snapshot) (string, bool) {
	var best string
	s.Doc().Find("textarea").Each(func(_ int, sel *goquery.Selection) {
		if text := sel.Text(); len(text) > len(best) {
			best = text
		}
	})
	if plausibleCode(best) {
		return best, true
	}
	return "", false
}

func containerCode(s *Snapshot) (string, bool) {
	var best string
	s.Doc().Find("pre code, .view-lines, .CodeMirror-code, [class*='code-area']").Each(func(_ int, sel *goquery.Selection) {
		if text := sel.Text(); len(text) > len(best) {
			best = text
		}
	})
	if plausibleCode(best) {
		return best, true
	}
	return "", false
}

// Difficulty returns Easy, Medium, or Hard. Badge selectors first, then a
// token scan of the page text in that priority order.
func Difficulty(s *Snapshot) (string, bool) {
	return firstMatch(s, badgeDifficulty, textDifficulty)
}

func badgeDifficulty(s *Snapshot) (string, bool) {
	var found string
	s.Doc().Find(`[diff], [class*="difficulty"], [class*="text-difficulty"]`).
		EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			text := collapseSpace(sel.Text())
			switch text {
			case record.DifficultyEasy, record.DifficultyMedium, record.DifficultyHard:
				found = text
				return false
			}
			return true
		})
	if found != "" {
		return found, true
	}
	return "", false
}

func textDifficulty(s *Snapshot) (string, bool) {
	body := s.Doc().Find("body").Text()
	for _, level := range []string{record.DifficultyEasy, record.DifficultyMedium, record.DifficultyHard} {
		if strings.Contains(body, level) {
			return level, true
		}
	}
	return "", false
}

// IsAccepted reports whether the page currently shows an accepted result:
// a success-colored "Accepted" header, a "passed N / N" summary with equal
// counts, or a submissions view pairing "Accepted" with a test-case ratio.
func IsAccepted(s *Snapshot) bool {
	if acceptedHeader(s) {
		return true
	}
	body := s.Doc().Find("body").Text()
	if m := passedRatioRe.FindStringSubmatch(body); m != nil && m[1] == m[2] {
		return true
	}
	if strings.Contains(body, "Accepted") && testCasesRe.MatchString(body) {
		return true
	}
	return false
}

func acceptedHeader(s *Snapshot) bool {
	found := false
	s.Doc().Find("span, div, h2, h3").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if strings.TrimSpace(sel.Text()) != "Accepted" {
			return true
		}
		style, _ := sel.Attr("style")
		class, _ := sel.Attr("class")
		if isSuccessStyle(style) || strings.Contains(class, "text-green") || strings.Contains(class, "success") {
			found = true
			return false
		}
		return true
	})
	return found
}

func isSuccessStyle(style string) bool {
	style = strings.ToLower(style)
	for _, color := range successColors {
		if strings.Contains(style, color) {
			return true
		}
	}
	return false
}
