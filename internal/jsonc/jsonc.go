// Package jsonc converts JSON-with-comments text into strict JSON.
//
// Only three extensions are understood: // line comments, /* */ block
// comments, and trailing commas before a closing } or ]. Everything inside a
// string literal is copied untouched.
package jsonc

type scanState int

const (
	stateCode scanState = iota
	stateString
	stateEscape
	stateLineComment
	stateBlockComment
)

// Normalize strips comments and then trailing commas from src.
// Comments go first so that a } or , inside a comment never reaches the
// comma pass.
func Normalize(src []byte) []byte {
	return RemoveTrailingCommas(StripComments(src))
}

// StripComments removes // and /* */ comments that appear outside string
// literals. A line comment ends before the next \n or \r. A block comment
// that is never closed runs to the end of the input.
func StripComments(src []byte) []byte {
	out := make([]byte, 0, len(src))
	state := stateCode

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch state {
		case stateString:
			out = append(out, c)
			switch c {
			case '\\':
				state = stateEscape
			case '"':
				state = stateCode
			}
		case stateEscape:
			out = append(out, c)
			state = stateString
		case stateLineComment:
			if c == '\n' || c == '\r' {
				out = append(out, c)
				state = stateCode
			}
		case stateBlockComment:
			if c == '*' && i+1 < len(src) && src[i+1] == '/' {
				i++
				state = stateCode
			}
		default:
			switch {
			case c == '"':
				out = append(out, c)
				state = stateString
			case c == '/' && i+1 < len(src) && src[i+1] == '/':
				i++
				state = stateLineComment
			case c == '/' && i+1 < len(src) && src[i+1] == '*':
				i++
				state = stateBlockComment
			default:
				out = append(out, c)
			}
		}
	}

	return out
}

// RemoveTrailingCommas drops every comma whose next non-whitespace byte is a
// closing } or ]. Removal cascades, so "[1, ,]" becomes "[1 ]". Commas
// inside string literals are never removed. Whitespace is kept.
func RemoveTrailingCommas(src []byte) []byte {
	out := make([]byte, 0, len(src))
	state := stateCode

	for _, c := range src {
		switch state {
		case stateString:
			out = append(out, c)
			switch c {
			case '\\':
				state = stateEscape
			case '"':
				state = stateCode
			}
			continue
		case stateEscape:
			out = append(out, c)
			state = stateString
			continue
		}

		switch c {
		case '"':
			state = stateString
		case '}', ']':
			out = dropTrailingCommas(out)
		}
		out = append(out, c)
	}

	return out
}

// dropTrailingCommas removes commas found at the tail of buf when only
// whitespace separates them from the end. The last non-whitespace byte of a
// string literal is always its closing quote, so any comma found here is
// structural.
func dropTrailingCommas(buf []byte) []byte {
	i := len(buf) - 1
	for i >= 0 {
		switch buf[i] {
		case ' ', '\t', '\n', '\r':
			i--
		case ',':
			buf = append(buf[:i], buf[i+1:]...)
			i--
		default:
			return buf
		}
	}
	return buf
}
