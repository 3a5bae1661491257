package normalize

import (
	"fmt"
	"strings"
)

// DefaultScanBudget bounds how many nodes a payload traversal may visit.
// Response payloads can be deeply nested; exceeding the budget is not an
// error, the scan simply reports no match.
const DefaultScanBudget = 200

// acceptedToken is the status value that marks a successful submission.
const acceptedToken = "accepted"

func isCodeKey(key string) bool {
	k := strings.ToLower(key)
	if strings.Contains(k, "lang") || strings.Contains(k, "status") {
		return false
	}
	return strings.Contains(k, "code")
}

func isLanguageKey(key string) bool {
	return strings.Contains(strings.ToLower(key), "lang")
}

func isTitleKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "title") && !strings.Contains(k, "slug")
}

func isSlugKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "slug") || k == "problemid" || k == "problem_id"
}

func isStatusKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "status") || k == "state" || k == "result" || k == "description" || k == "status_msg"
}

func isRuntimeKey(key string) bool {
	k := strings.ToLower(key)
	return k == "time" || strings.Contains(k, "runtime")
}

func isMemoryKey(key string) bool {
	return strings.Contains(strings.ToLower(key), "memory")
}

func isDifficultyKey(key string) bool {
	return strings.Contains(strings.ToLower(key), "difficulty")
}

func isProblemNumberKey(key string) bool {
	k := strings.ToLower(key)
	switch k {
	case "questionfrontendid", "frontendquestionid", "question_id", "questionid", "problemnumber", "problem_number":
		return true
	}
	return false
}

// stringValue renders scalar payload values as strings. JSON numbers decode
// as float64; integral ones are printed without the fraction.
func stringValue(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, val != ""
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val)), true
		}
		return fmt.Sprintf("%v", val), true
	case bool:
		return fmt.Sprintf("%t", val), true
	}
	return "", false
}

// walk performs a breadth-first traversal of a decoded JSON graph, calling
// visit for every object node until the budget is exhausted or visit returns
// false.
func walk(root any, budget int, visit func(map[string]any) bool) {
	if budget <= 0 {
		budget = DefaultScanBudget
	}
	queue := []any{root}
	visited := 0
	for len(queue) > 0 && visited < budget {
		node := queue[0]
		queue = queue[1:]
		visited++

		switch n := node.(type) {
		case map[string]any:
			if !visit(n) {
				return
			}
			for _, child := range n {
				queue = append(queue, child)
			}
		case []any:
			queue = append(queue, n...)
		}
	}
}

// findString returns the first string value in the graph whose key satisfies
// match.
func findString(root any, budget int, match func(string) bool) (string, bool) {
	var result string
	walk(root, budget, func(obj map[string]any) bool {
		for key, value := range obj {
			if !match(key) {
				continue
			}
			if s, ok := stringValue(value); ok {
				result = s
				return false
			}
		}
		return true
	})
	return result, result != ""
}

// statusAccepted reports whether a status-like field in obj equals
// "accepted".
func statusAccepted(obj map[string]any) bool {
	for key, value := range obj {
		if !isStatusKey(key) {
			continue
		}
		if s, ok := stringValue(value); ok && strings.EqualFold(strings.TrimSpace(s), acceptedToken) {
			return true
		}
		// Nested status objects: {"status": {"description": "Accepted"}}
		if nested, ok := value.(map[string]any); ok && statusAccepted(nested) {
			return true
		}
	}
	return false
}

// findAcceptedSingle locates the object carrying an accepted status field in
// a single-result payload shape.
func findAcceptedSingle(root any, budget int) (map[string]any, bool) {
	var found map[string]any
	walk(root, budget, func(obj map[string]any) bool {
		if statusAccepted(obj) {
			found = obj
			return false
		}
		return true
	})
	return found, found != nil
}

// findAcceptedInArrays handles the per-test-case array shape: for each array
// of result objects, scan from the end for the last accepted element.
func findAcceptedInArrays(root any, budget int) (map[string]any, bool) {
	if budget <= 0 {
		budget = DefaultScanBudget
	}
	queue := []any{root}
	visited := 0
	for len(queue) > 0 && visited < budget {
		node := queue[0]
		queue = queue[1:]
		visited++

		switch n := node.(type) {
		case map[string]any:
			for _, child := range n {
				queue = append(queue, child)
			}
		case []any:
			for i := len(n) - 1; i >= 0; i-- {
				if obj, ok := n[i].(map[string]any); ok && statusAccepted(obj) {
					return obj, true
				}
			}
			queue = append(queue, n...)
		}
	}
	return nil, false
}

// findSubmissionObject is the generic fallback for unknown payload schemas:
// it looks for an object where any field holds the value "accepted" alongside
// code, language, and title-or-slug siblings. Unlike the shape-specific
// checks it does not require a recognizable status key name.
func findSubmissionObject(root any, budget int) (map[string]any, bool) {
	var found map[string]any
	walk(root, budget, func(obj map[string]any) bool {
		if !anyValueAccepted(obj) {
			return true
		}
		var hasCode, hasLang, hasName bool
		for key, value := range obj {
			if _, ok := stringValue(value); !ok {
				continue
			}
			switch {
			case isCodeKey(key):
				hasCode = true
			case isLanguageKey(key):
				hasLang = true
			case isTitleKey(key) || isSlugKey(key):
				hasName = true
			}
		}
		if hasCode && hasLang && hasName {
			found = obj
			return false
		}
		return true
	})
	return found, found != nil
}

// anyValueAccepted reports whether any scalar field of obj equals "accepted".
func anyValueAccepted(obj map[string]any) bool {
	for _, value := range obj {
		if s, ok := stringValue(value); ok && strings.EqualFold(strings.TrimSpace(s), acceptedToken) {
			return true
		}
	}
	return false
}
