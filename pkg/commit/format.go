package commit

import (
	"fmt"
	"strings"
	"time"

	"github.com/gitgrind/gitgrind/pkg/record"
)

// FormatReadme renders the description file: linked title, difficulty badge
// line, then the cleaned statement HTML.
func FormatReadme(rec *record.SubmissionRecord) []byte {
	var sb strings.Builder

	title := rec.Title
	if rec.ProblemNumber != "" && !strings.HasPrefix(title, rec.ProblemNumber+".") {
		title = rec.ProblemNumber + ". " + title
	}

	if rec.URL != "" {
		fmt.Fprintf(&sb, "# [%s](%s)\n\n", title, rec.URL)
	} else {
		fmt.Fprintf(&sb, "# %s\n\n", title)
	}
	if rec.Difficulty != "" {
		fmt.Fprintf(&sb, "**Difficulty:** %s\n\n", rec.Difficulty)
	}
	if rec.Description != "" {
		sb.WriteString(rec.Description)
		if !strings.HasSuffix(rec.Description, "\n") {
			sb.WriteString("\n")
		}
	}
	return []byte(sb.String())
}

// FormatCode renders the solution file: a comment header carrying title,
// runtime, memory, and the ISO acceptance timestamp, then the raw code
// byte-for-byte.
func FormatCode(rec *record.SubmissionRecord) []byte {
	style := record.CommentStyleFor(rec.Language)
	stamp := rec.AcceptedAt().UTC().Format(time.RFC3339)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", style.Line, rec.Title)
	fmt.Fprintf(&sb, "%s Runtime: %s, Memory: %s\n", style.Line, rec.Runtime, rec.Memory)
	fmt.Fprintf(&sb, "%s Accepted: %s\n\n", style.Line, stamp)
	sb.WriteString(rec.Code)
	if !strings.HasSuffix(rec.Code, "\n") {
		sb.WriteString("\n")
	}
	return []byte(sb.String())
}
