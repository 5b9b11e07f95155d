package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsHTML(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"plain text", "just a note about groceries", false},
		{"markdown", "# Heading\n\n- item one\n- item two", false},
		{"paragraph tag", "<p>hello</p>", true},
		{"uppercase tag", "<P>hello</P>", true},
		{"anchor", `see <a href="https://example.com">this</a>`, true},
		{"angle brackets in prose", "use x < y and y > z", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContainsHTML(tt.input))
		})
	}
}

func TestFromHTML_ConvertsMarkup(t *testing.T) {
	got := FromHTML("<p>Buy <strong>milk</strong> tomorrow</p>")
	assert.Equal(t, "Buy **milk** tomorrow", got)
}

func TestFromHTML_List(t *testing.T) {
	got := FromHTML("<ul><li>one</li><li>two</li></ul>")
	assert.Contains(t, got, "- one")
	assert.Contains(t, got, "- two")
}

func TestFromHTML_PlainTextUnchanged(t *testing.T) {
	input := "already plain, maybe with *markdown*"
	assert.Equal(t, input, FromHTML(input))
}

func TestFromHTML_Empty(t *testing.T) {
	assert.Equal(t, "", FromHTML(""))
}
