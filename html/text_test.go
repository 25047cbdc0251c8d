package html

import (
	"strings"
	"testing"
)

func TestToText(t *testing.T) {
	testCases := []struct {
		description string
		input       string
		expected    string
	}{
		{
			description: "document with head, heading, link and list",
			input: `<html><head><title>T</title><style>p{color:red}</style></head>
<body><h1>Hello</h1><p>Read <a href="https://example.com">this</a> now.</p>
<ul><li>one</li><li>two</li></ul></body></html>`,
			expected: "Hello\n\nRead this (https://example.com) now.\n\n- one\n- two",
		},
		{
			description: "line breaks",
			input:       `first<br>second<br/>third`,
			expected:    "first\nsecond\nthird",
		},
		{
			description: "inline elements keep words together",
			input:       `<p>Hi <b>there</b>, <i>friend</i>!</p>`,
			expected:    "Hi there, friend!",
		},
		{
			description: "link whose text is its target",
			input:       `<a href="https://example.com">https://example.com</a>`,
			expected:    "https://example.com",
		},
		{
			description: "fragment links are not expanded",
			input:       `<a href="#top">Back to top</a>`,
			expected:    "Back to top",
		},
		{
			description: "table cells",
			input:       `<table><tr><td>a</td><td>b</td></tr><tr><td>c</td><td>d</td></tr></table>`,
			expected:    "a b\nc d",
		},
		{
			description: "scripts are dropped",
			input:       `<p>visible</p><script>var hidden = 1;</script>`,
			expected:    "visible",
		},
		{
			description: "collapsed whitespace",
			input:       "<p>  lots   of\n\n   space  </p>",
			expected:    "lots of space",
		},
		{
			description: "empty input",
			input:       "",
			expected:    "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			got, err := ToText(strings.NewReader(tc.input))
			if err != nil {
				t.Fatalf("%v: unexpected error: %v", tc.description, err)
			}
			if got != tc.expected {
				t.Errorf(
					"%v: expected %q but got %q",
					tc.description,
					tc.expected,
					got,
				)
			}
		})
	}
}
