package interpret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCode(t *testing.T) {
	str := func(s string) *string { return &s }
	cases := []struct {
		name    string
		content string
		want    *string
	}{
		{"fenced", "```html\n<p>hi</p>\n```", str("\n<p>hi</p>\n")},
		{"fenced with prose", "Build:\n```html\n<div></div>\n```\nthanks", str("\n<div></div>\n")},
		{"upper tag", "```HTML\n<b>x</b>\n```", str("\n<b>x</b>\n")},
		{"first of many", "```html\nA\n```\n```html\nB\n```", str("\nA\n")},
		{"empty block", "```html```", str("")},
		{"plain text", "just a design doc", nil},
		{"empty", "", nil},
		{"other fence", "```js\nlet a = 1\n```", nil},
		{"doctype only", "<!DOCTYPE html><html></html>", str("<!DOCTYPE html><html></html>")},
		{"lower doctype", "x <!doctype html> y", str("x <!doctype html> y")},
		{"html tag", "page: <html>\n</html>", str("page: <html>\n</html>")},
		{"html tag with attrs", `<html lang="en"></html>`, str(`<html lang="en"></html>`)},
		{"htmlx is not a marker", "<htmlx>", nil},
		{"unclosed fence", "```html\n<p>never closed", nil},
		{"unclosed fence with doctype", "```html\n<!DOCTYPE html><html>", nil},
		{"marker before unclosed fence", "<html>\n```html\nopen", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractCode(tc.content)
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tc.want, *got)
		})
	}
}

func TestExtractCode_NeverPanics(t *testing.T) {
	inputs := []string{"`", "``", "```", "```h", "```htm", "<", "<html", "<!doctype", "\xff```html\xfe```", "```html`"}
	for _, in := range inputs {
		assert.NotPanics(t, func() { _ = ExtractCode(in) }, in)
	}
}
