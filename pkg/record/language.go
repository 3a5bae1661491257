package record

import (
	"regexp"
	"strings"
)

// LanguageUnknown is the tag used when no strategy could identify a language.
const LanguageUnknown = "unknown"

// languageAliases maps free-form language labels (selector text, request
// payload values, editor ids) to the site's canonical language slugs.
var languageAliases = map[string]string{
	"python":      "python",
	"python3":     "python3",
	"python 3":    "python3",
	"py":          "python3",
	"cpp":         "cpp",
	"c++":         "cpp",
	"c":           "c",
	"java":        "java",
	"javascript":  "javascript",
	"js":          "javascript",
	"typescript":  "typescript",
	"ts":          "typescript",
	"go":          "golang",
	"golang":      "golang",
	"rust":        "rust",
	"ruby":        "ruby",
	"rb":          "ruby",
	"swift":       "swift",
	"kotlin":      "kotlin",
	"kt":          "kotlin",
	"scala":       "scala",
	"csharp":      "csharp",
	"c#":          "csharp",
	"cs":          "csharp",
	"php":         "php",
	"dart":        "dart",
	"elixir":      "elixir",
	"erlang":      "erlang",
	"racket":      "racket",
	"mysql":       "mysql",
	"mssql":       "mssql",
	"oraclesql":   "oraclesql",
	"postgresql":  "postgresql",
	"sql":         "mysql",
	"bash":        "bash",
	"shell":       "bash",
	"objective-c": "objc",
	"objc":        "objc",
}

// languageExtensions maps canonical language slugs to solution file
// extensions. Unrecognized languages fall back to .txt.
var languageExtensions = map[string]string{
	"python":     "py",
	"python3":    "py",
	"cpp":        "cpp",
	"c":          "c",
	"java":       "java",
	"javascript": "js",
	"typescript": "ts",
	"golang":     "go",
	"rust":       "rs",
	"ruby":       "rb",
	"swift":      "swift",
	"kotlin":     "kt",
	"scala":      "scala",
	"csharp":     "cs",
	"php":        "php",
	"dart":       "dart",
	"elixir":     "ex",
	"erlang":     "erl",
	"racket":     "rkt",
	"mysql":      "sql",
	"mssql":      "sql",
	"oraclesql":  "sql",
	"postgresql": "sql",
	"bash":       "sh",
	"objc":       "m",
}

// NormalizeLanguage maps a free-form language label to a canonical slug.
// Returns LanguageUnknown for labels it does not recognize.
func NormalizeLanguage(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return LanguageUnknown
	}
	if slug, ok := languageAliases[key]; ok {
		return slug
	}
	return LanguageUnknown
}

// KnownLanguage reports whether raw maps to a canonical slug.
func KnownLanguage(raw string) bool {
	return NormalizeLanguage(raw) != LanguageUnknown
}

// ExtensionFor returns the solution file extension for a language slug.
func ExtensionFor(language string) string {
	if ext, ok := languageExtensions[NormalizeLanguage(language)]; ok {
		return ext
	}
	if ext, ok := languageExtensions[language]; ok {
		return ext
	}
	return "txt"
}

// CommentStyle describes how to write the solution header comment for a
// language.
type CommentStyle struct {
	Line       string // line comment prefix, e.g. "//" or "#"
	BlockOpen  string // block comment open, empty if unsupported
	BlockClose string
}

var commentStyles = map[string]CommentStyle{
	"python":     {Line: "#"},
	"python3":    {Line: "#"},
	"ruby":       {Line: "#"},
	"bash":       {Line: "#"},
	"elixir":     {Line: "#"},
	"erlang":     {Line: "%"},
	"racket":     {Line: ";"},
	"mysql":      {Line: "--"},
	"mssql":      {Line: "--"},
	"oraclesql":  {Line: "--"},
	"postgresql": {Line: "--"},
}

// CommentStyleFor returns the comment style for a language slug. The default
// is C-style line comments, which covers the bulk of the enum.
func CommentStyleFor(language string) CommentStyle {
	if style, ok := commentStyles[NormalizeLanguage(language)]; ok {
		return style
	}
	return CommentStyle{Line: "//", BlockOpen: "/*", BlockClose: "*/"}
}

// signature is one weighted pattern vote for a language.
type signature struct {
	language string
	pattern  *regexp.Regexp
	weight   int
}

// codeSignatures are keyword/syntax votes used by DetectLanguage. Patterns
// chosen to discriminate between the common pairs (c vs cpp, js vs ts,
// python vs ruby) rather than to be exhaustive.
var codeSignatures = []signature{
	{"python3", regexp.MustCompile(`(?m)^\s*def \w+\(.*\)\s*(->.*)?:`), 3},
	{"python3", regexp.MustCompile(`(?m)^\s*(import|from)\s+\w+`), 1},
	{"python3", regexp.MustCompile(`\bself\b`), 1},
	{"python3", regexp.MustCompile(`(?m)^\s*elif\b`), 2},
	{"cpp", regexp.MustCompile(`std::|#include\s*<\w+>\s*$|\bvector<`), 3},
	{"cpp", regexp.MustCompile(`\bcout\b|\bnullptr\b|\btemplate\s*<`), 2},
	{"c", regexp.MustCompile(`#include\s*<\w+\.h>`), 3},
	{"c", regexp.MustCompile(`\bprintf\s*\(|\bmalloc\s*\(`), 2},
	{"java", regexp.MustCompile(`\bpublic\s+(final\s+)?class\b|\bSystem\.out\b`), 3},
	{"java", regexp.MustCompile(`\bpublic\s+static\s+void\s+main\b`), 2},
	{"typescript", regexp.MustCompile(`:\s*(number|string|boolean)\b|\binterface\s+\w+\s*\{`), 3},
	{"javascript", regexp.MustCompile(`\bfunction\s+\w+\(|\bconsole\.log\b|=>\s*\{`), 2},
	{"javascript", regexp.MustCompile(`\b(var|let|const)\s+\w+\s*=`), 1},
	{"golang", regexp.MustCompile(`\bfunc\s+\w+\(|\bpackage\s+\w+|:=`), 3},
	{"golang", regexp.MustCompile(`\bfmt\.\w+\(`), 2},
	{"rust", regexp.MustCompile(`\bfn\s+\w+\(|\blet\s+mut\b|println!`), 3},
	{"rust", regexp.MustCompile(`\bimpl\s+\w+|->\s*\w+\s*\{`), 1},
	{"ruby", regexp.MustCompile(`(?m)^\s*def\s+\w+\s*$|\bputs\b|\.each\b`), 2},
	{"ruby", regexp.MustCompile(`(?m)^\s*end\s*$`), 1},
	{"kotlin", regexp.MustCompile(`\bfun\s+\w+\(|\bval\s+\w+\s*=`), 3},
	{"swift", regexp.MustCompile(`\bfunc\s+\w+\(.*\)\s*->|\bvar\s+\w+:\s*\w+`), 2},
	{"csharp", regexp.MustCompile(`\busing\s+System\b|\bConsole\.Write`), 3},
	{"php", regexp.MustCompile(`<\?php|\$\w+\s*=`), 2},
	{"mysql", regexp.MustCompile(`(?i)\bSELECT\b.*\bFROM\b`), 3},
}

// DetectLanguage guesses a language slug from raw solution text using static
// keyword/syntax signatures. Returns LanguageUnknown when no signature family
// earns a confident score.
func DetectLanguage(code string) string {
	if strings.TrimSpace(code) == "" {
		return LanguageUnknown
	}

	scores := make(map[string]int)
	for _, sig := range codeSignatures {
		if sig.pattern.MatchString(code) {
			scores[sig.language] += sig.weight
		}
	}

	// Walk the signature table rather than the score map so equal scores
	// resolve to the earliest-listed language on every run.
	best, bestScore := LanguageUnknown, 0
	for _, sig := range codeSignatures {
		if score := scores[sig.language]; score > bestScore {
			best, bestScore = sig.language, score
		}
	}
	// A single weak vote is not enough to call it.
	if bestScore < 3 {
		return LanguageUnknown
	}
	return best
}
