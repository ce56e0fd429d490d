package lexer

import (
	"strings"

	"github.com/xplshn/chibicc/pkg/util"
)

// Normalize prepares raw file contents for tokenizing: it drops a UTF-8
// BOM, canonicalizes newlines, splices backslash-newline pairs and replaces
// \u and \U escapes with UTF-8. The result always ends in a newline.
func Normalize(src []byte) string {
	s := string(src)
	s = strings.TrimPrefix(s, "\xef\xbb\xbf")
	s = canonicalizeNewlines(s)
	s = removeBackslashNewline(s)
	s = convertUniversalChars(s)
	if len(s) == 0 || s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

func canonicalizeNewlines(s string) string {
	if strings.IndexByte(s, '\r') < 0 {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// removeBackslashNewline splices continued lines. The removed newlines are
// re-emitted after the next real newline so that line numbers still match
// the physical file.
func removeBackslashNewline(s string) string {
	if !strings.Contains(s, "\\\n") {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	pending := 0
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\\' && i+1 < len(s) && s[i+1] == '\n':
			i++
			pending++
		case s[i] == '\n':
			sb.WriteByte('\n')
			for ; pending > 0; pending-- {
				sb.WriteByte('\n')
			}
		default:
			sb.WriteByte(s[i])
		}
	}
	for ; pending > 0; pending-- {
		sb.WriteByte('\n')
	}
	return sb.String()
}

func readUniversalChar(s string, n int) rune {
	if len(s) < n {
		return 0
	}
	var c rune
	for i := 0; i < n; i++ {
		if !isHex(s[i]) {
			return 0
		}
		c = c<<4 | rune(fromHex(s[i]))
	}
	return c
}

func convertUniversalChars(s string) string {
	if !strings.Contains(s, "\\u") && !strings.Contains(s, "\\U") {
		return s
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		switch {
		case strings.HasPrefix(s[i:], "\\u"):
			if c := readUniversalChar(s[i+2:], 4); c != 0 {
				out = util.AppendUTF8(out, c)
				i += 6
				continue
			}
			out = append(out, s[i])
			i++
		case strings.HasPrefix(s[i:], "\\U"):
			if c := readUniversalChar(s[i+2:], 8); c != 0 {
				out = util.AppendUTF8(out, c)
				i += 10
				continue
			}
			out = append(out, s[i])
			i++
		case s[i] == '\\' && i+1 < len(s):
			out = append(out, s[i], s[i+1])
			i += 2
		default:
			out = append(out, s[i])
			i++
		}
	}
	return string(out)
}
