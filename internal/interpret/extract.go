package interpret

import "strings"

const (
	htmlFenceOpen = "```html"
	fenceClose    = "```"
)

type scanState int

const (
	scanSearching scanState = iota
	scanInFence
	scanDone
)

// ExtractCode returns the first html-fenced block of content, or all of
// content when it carries a raw HTML document marker. A fence without a
// closing mark yields nil.
func ExtractCode(content string) *string {
	var (
		state    = scanSearching
		pos      int
		start    int
		sawFence bool
		snippet  *string
	)
	for state != scanDone {
		switch state {
		case scanSearching:
			i := indexFold(content[pos:], htmlFenceOpen)
			if i < 0 {
				state = scanDone
				continue
			}
			sawFence = true
			start = pos + i + len(htmlFenceOpen)
			pos = start
			state = scanInFence
		case scanInFence:
			if i := strings.Index(content[pos:], fenceClose); i >= 0 {
				s := content[start : pos+i]
				snippet = &s
			}
			state = scanDone
		}
	}
	if sawFence {
		return snippet
	}
	if hasHTMLMarker(content) {
		s := content
		return &s
	}
	return nil
}

func hasHTMLMarker(content string) bool {
	if indexFold(content, "<!doctype html") >= 0 {
		return true
	}
	for pos := 0; ; {
		i := indexFold(content[pos:], "<html")
		if i < 0 {
			return false
		}
		end := pos + i + len("<html")
		if end < len(content) {
			switch content[end] {
			case '>', ' ', '\t', '\n', '\r':
				return true
			}
		}
		pos = end
	}
}

// indexFold is strings.Index with ASCII case folding on the needle.
func indexFold(s, needle string) int {
	n := len(needle)
	for i := 0; i+n <= len(s); i++ {
		if asciiEqualFold(s[i:i+n], needle) {
			return i
		}
	}
	return -1
}

func asciiEqualFold(a, b string) bool {
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
