package extract

import (
	"strings"
	"testing"

	"github.com/gitgrind/gitgrind/pkg/record"
)

const problemPage = `<html>
<head><title>Group Anagrams - CodePractice</title></head>
<body>
  <div data-cy="question-title">49. Group Anagrams</div>
  <div class="text-difficulty-medium difficulty-badge">Medium</div>
  <div data-track-load="description_content">
    <p>Given an array of strings <code>strs</code>, group the anagrams together.
    You can return the answer in any order. An anagram is a word formed by
    rearranging the letters of a different word.</p>
    <details><summary>Hint 1</summary><p>Sort each string.</p></details>
  </div>
  <div class="lang-select">C++</div>
</body>
</html>`

func TestTitlePrefersOrdinal(t *testing.T) {
	snap := &Snapshot{HTML: `<html><body>
		<h1>Problems</h1>
		<h1>49. Group Anagrams</h1>
	</body></html>`}

	title, ok := Title(snap)
	if !ok || title != "49. Group Anagrams" {
		t.Errorf("Title = %q, %v", title, ok)
	}
}

func TestTitleFallsBackToPageTitle(t *testing.T) {
	snap := &Snapshot{HTML: `<html><head><title>Two Sum - CodePractice</title></head><body></body></html>`}

	title, ok := Title(snap)
	if !ok || title != "Two Sum" {
		t.Errorf("Title = %q, %v", title, ok)
	}
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"https://practice.example.com/problems/two-sum/":            "two-sum",
		"https://practice.example.com/problem/valid-parentheses":    "valid-parentheses",
		"https://practice.example.com/problems/3sum/submissions/":   "3sum",
		"https://practice.example.com/contest/weekly/ranking/":      "",
	}
	for url, want := range cases {
		slug, ok := Slug(&Snapshot{URL: url})
		if want == "" {
			if ok {
				t.Errorf("Slug(%q) unexpectedly matched %q", url, slug)
			}
			continue
		}
		if !ok || slug != want {
			t.Errorf("Slug(%q) = %q, %v; want %q", url, slug, ok, want)
		}
	}
}

func TestProblemNumber(t *testing.T) {
	snap := &Snapshot{HTML: problemPage}
	num, ok := ProblemNumber(snap)
	if !ok || num != "49" {
		t.Errorf("ProblemNumber = %q, %v", num, ok)
	}
}

func TestLanguageChainOrder(t *testing.T) {
	// Editor id wins over the visible selector.
	snap := &Snapshot{
		HTML:    problemPage,
		Editors: []EditorModel{{LanguageID: "python", Value: "pass"}},
	}
	if lang := Language(snap); lang != "python" {
		t.Errorf("editor language should win, got %q", lang)
	}

	// Global state wins over everything.
	snap.GlobalLanguage = "rust"
	if lang := Language(snap); lang != "rust" {
		t.Errorf("global language should win, got %q", lang)
	}

	// With neither, the selector text is used.
	bare := &Snapshot{HTML: problemPage}
	if lang := Language(bare); lang != "cpp" {
		t.Errorf("selector language fallback = %q, want cpp", lang)
	}
}

func TestLanguageFromLocalStorage(t *testing.T) {
	snap := &Snapshot{
		HTML:         "<html><body></body></html>",
		LocalStorage: map[string]string{"global_lang": `"golang"`},
	}
	if lang := Language(snap); lang != "golang" {
		t.Errorf("localStorage language = %q", lang)
	}
}

func TestLanguageStaticDetectionFallback(t *testing.T) {
	snap := &Snapshot{
		HTML: "<html><body><pre><code>func twoSum(nums []int, target int) []int {\n\tseen := map[int]int{}\n\treturn nil\n}</code></pre></body></html>",
	}
	if lang := Language(snap); lang != "golang" {
		t.Errorf("static detection fallback = %q", lang)
	}
}

func TestLanguageUnknown(t *testing.T) {
	snap := &Snapshot{HTML: "<html><body><p>nothing here</p></body></html>"}
	if lang := Language(snap); lang != record.LanguageUnknown {
		t.Errorf("expected unknown, got %q", lang)
	}
}

func TestCodePrefersEditorValue(t *testing.T) {
	editorBody := "def twoSum(self, nums, target):\n    return []"
	snap := &Snapshot{
		HTML:    "<html><body><textarea>stale textarea body longer than editor</textarea></body></html>",
		Editors: []EditorModel{{LanguageID: "python3", Value: editorBody}},
	}
	code, ok := Code(snap)
	if !ok || code != editorBody {
		t.Errorf("Code = %q, %v", code, ok)
	}
}

func TestCodeRejectsShortValues(t *testing.T) {
	snap := &Snapshot{
		HTML:    "<html><body><textarea>pass</textarea></body></html>",
		Editors: []EditorModel{{LanguageID: "python3", Value: "pass"}},
	}
	if code, ok := Code(snap); ok {
		t.Errorf("short values must be rejected, got %q", code)
	}
}

func TestCodeLargestTextarea(t *testing.T) {
	snap := &Snapshot{HTML: `<html><body>
		<textarea>short</textarea>
		<textarea>def twoSum(nums, target):
    return sorted(nums)</textarea>
	</body></html>`}

	code, ok := Code(snap)
	if !ok || !strings.Contains(code, "def twoSum") {
		t.Errorf("Code = %q, %v", code, ok)
	}
}

func TestDifficultyBadge(t *testing.T) {
	snap := &Snapshot{HTML: problemPage}
	diff, ok := Difficulty(snap)
	if !ok || diff != "Medium" {
		t.Errorf("Difficulty = %q, %v", diff, ok)
	}
}

func TestDifficultyTextScanPriority(t *testing.T) {
	snap := &Snapshot{HTML: "<html><body><p>This Hard problem is rated Easy by some.</p></body></html>"}
	diff, ok := Difficulty(snap)
	if !ok || diff != "Easy" {
		t.Errorf("token priority should pick Easy first, got %q, %v", diff, ok)
	}
}

func TestDescription(t *testing.T) {
	snap := &Snapshot{HTML: problemPage}
	desc, ok := Description(snap)
	if !ok {
		t.Fatal("expected a description")
	}
	if !strings.Contains(desc, "group the anagrams") {
		t.Errorf("statement text missing: %q", desc)
	}
	if strings.Contains(desc, "Hint 1") || strings.Contains(desc, "Sort each string") {
		t.Errorf("hint accordion should be stripped: %q", desc)
	}
}

func TestDescriptionRejectsResultPanel(t *testing.T) {
	snap := &Snapshot{HTML: `<html><body>
	<div class="question-content">Your Submission was Accepted. Runtime beats 90% of users.
	This panel repeats submission details and is long enough to pass the length check easily.</div>
	</body></html>`}

	if desc, ok := Description(snap); ok {
		t.Errorf("result panel must be rejected, got %q", desc)
	}
}

func TestDescriptionRejectsShortCandidates(t *testing.T) {
	snap := &Snapshot{HTML: `<html><body><div class="question-content">Too short.</div></body></html>`}
	if _, ok := Description(snap); ok {
		t.Error("short candidate must be rejected")
	}
}

func TestCleanDescriptionHTMLTrailingSections(t *testing.T) {
	html := `<p>Statement body.</p><div class="mt-4">Topics: Array, Hash Table</div>`
	cleaned := CleanDescriptionHTML(html)
	if strings.Contains(cleaned, "Topics") {
		t.Errorf("trailing topics section should be stripped: %q", cleaned)
	}
	if !strings.Contains(cleaned, "Statement body.") {
		t.Errorf("statement body lost: %q", cleaned)
	}
}

func TestIsAcceptedSuccessColor(t *testing.T) {
	snap := &Snapshot{HTML: `<html><body><span style="color: rgb(0, 175, 155)">Accepted</span></body></html>`}
	if !IsAccepted(snap) {
		t.Error("success-colored Accepted header should be detected")
	}

	plain := &Snapshot{HTML: `<html><body><span>Accepted</span></body></html>`}
	if IsAccepted(plain) {
		t.Error("an unstyled Accepted token alone is not an acceptance")
	}
}

func TestIsAcceptedPassedRatio(t *testing.T) {
	pass := &Snapshot{HTML: `<html><body><div>Passed 57 / 57</div></body></html>`}
	if !IsAccepted(pass) {
		t.Error("equal passed ratio should be detected")
	}

	fail := &Snapshot{HTML: `<html><body><div>Passed 56 / 57</div></body></html>`}
	if IsAccepted(fail) {
		t.Error("unequal passed ratio is not an acceptance")
	}
}

func TestIsAcceptedSubmissionsView(t *testing.T) {
	snap := &Snapshot{HTML: `<html><body>
		<td class="text-green">Accepted</td><td>57 / 57 test cases</td>
	</body></html>`}
	if !IsAccepted(snap) {
		t.Error("submissions view with Accepted and a test-case ratio should be detected")
	}
}
