package validate

import (
	"regexp"
	"strings"
)

// Source is a pipeline text prepared for rule evaluation. Code and Bare have
// the same byte offsets and line breaks as Text.
type Source struct {
	Text string
	// Code is Text with comments blanked out.
	Code string
	// Bare is Code with the contents of string literals blanked out as well.
	Bare string
	// Unterminated lists the lines where a string or block comment is never closed.
	Unterminated []int
}

// Block is a named brace-delimited declaration such as a process.
type Block struct {
	Name string
	Line int
	// Body is the comment-free text between the braces.
	Body string
	// BareBody is Body with string contents blanked.
	BareBody string
}

// NewSource scans text once, blanking comments and string contents.
func NewSource(text string) *Source {
	code := []byte(text)
	bare := []byte(text)
	blank := func(i int) {
		if text[i] != '\n' {
			code[i] = ' '
			bare[i] = ' '
		}
	}
	blankBare := func(i int) {
		if text[i] != '\n' {
			bare[i] = ' '
		}
	}

	s := &Source{Text: text}
	n := len(text)
	i, line := 0, 1

	if strings.HasPrefix(text, "#!") {
		for ; i < n && text[i] != '\n'; i++ {
			blank(i)
		}
	}

	for i < n {
		rest := text[i:]
		switch {
		case text[i] == '\n':
			line++
			i++

		case strings.HasPrefix(rest, "//"):
			for ; i < n && text[i] != '\n'; i++ {
				blank(i)
			}

		case strings.HasPrefix(rest, "/*"):
			start := line
			stop := n
			if end := strings.Index(rest[2:], "*/"); end >= 0 {
				stop = i + 2 + end + 2
			} else {
				s.Unterminated = append(s.Unterminated, start)
			}
			for ; i < stop; i++ {
				if text[i] == '\n' {
					line++
				}
				blank(i)
			}

		case text[i] == '\'' || text[i] == '"':
			delim := text[i : i+1]
			if strings.HasPrefix(rest, strings.Repeat(delim, 3)) {
				delim = strings.Repeat(delim, 3)
			}
			start := line
			i += len(delim)
			closed := false
			for i < n {
				if text[i] == '\\' && i+1 < n {
					blankBare(i)
					blankBare(i + 1)
					if text[i+1] == '\n' {
						line++
					}
					i += 2
					continue
				}
				if strings.HasPrefix(text[i:], delim) {
					i += len(delim)
					closed = true
					break
				}
				if text[i] == '\n' {
					if len(delim) == 1 {
						break
					}
					line++
				}
				blankBare(i)
				i++
			}
			if !closed {
				s.Unterminated = append(s.Unterminated, start)
			}

		default:
			i++
		}
	}

	s.Code = string(code)
	s.Bare = string(bare)
	return s
}

// lineAt returns the 1-based line of a byte offset.
func (s *Source) lineAt(offset int) int {
	return strings.Count(s.Text[:offset], "\n") + 1
}

// Blocks returns every declaration matched by re outside comments and
// strings. re must match through the opening brace of the declaration and
// capture its name in group 1; a missing group yields an empty name. An
// unclosed block runs to the end of the text.
func (s *Source) Blocks(re *regexp.Regexp) []Block {
	var blocks []Block
	for _, m := range re.FindAllStringSubmatchIndex(s.Bare, -1) {
		open := m[1] - 1
		if open < 0 || s.Bare[open] != '{' {
			continue
		}
		depth, end := 0, len(s.Bare)
	scan:
		for j := open; j < len(s.Bare); j++ {
			switch s.Bare[j] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					end = j
					break scan
				}
			}
		}

		var name string
		if len(m) >= 4 && m[2] >= 0 {
			name = s.Bare[m[2]:m[3]]
		}
		bodyStart := min(open+1, end)
		blocks = append(blocks, Block{
			Name:     name,
			Line:     s.lineAt(m[0]),
			Body:     s.Code[bodyStart:end],
			BareBody: s.Bare[bodyStart:end],
		})
	}
	return blocks
}
