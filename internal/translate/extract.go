package translate

import (
	"errors"
	"strings"
)

// ExtractJSON pulls the outermost JSON object or array out of raw LLM
// output. Models wrap their answers in markdown fences, prefix them
// with prose, or emit Unicode line separators; all of that is
// tolerated here so the parse either gets clean JSON or the caller
// falls back.
func ExtractJSON(content string) (string, error) {
	content = normalizeSeparators(content)
	content = stripFence(content)

	start := strings.IndexAny(content, "{[")
	if start == -1 {
		return "", errors.New("no JSON object or array found in content")
	}

	end, err := matchCloser(content, start)
	if err != nil {
		return "", err
	}

	return content[start : end+1], nil
}

// normalizeSeparators replaces U+2028/U+2029 with regular newlines;
// encoding/json rejects them inside unquoted positions and some
// providers emit them freely.
func normalizeSeparators(s string) string {
	return strings.NewReplacer("\u2028", "\n", "\u2029", "\n").Replace(s)
}

// stripFence removes one leading/trailing markdown code fence, with or
// without a language tag.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	// Drop the opening fence line (``` or ```json).
	if idx := strings.IndexByte(s, '\n'); idx != -1 {
		s = s[idx+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}

	// Drop the closing fence and anything after it.
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	return strings.TrimSpace(s)
}

// matchCloser scans from the opener at start and returns the index of
// the matching closer, tracking nesting depth and skipping string
// literals and escapes.
func matchCloser(s string, start int) (int, error) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}

	return 0, errors.New("unbalanced JSON in content")
}
