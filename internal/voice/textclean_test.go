package voice

import "testing"

func TestCleanText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain text untouched",
			input: "Hello there, how are you?",
			want:  "Hello there, how are you?",
		},
		{
			name:  "think block removed",
			input: "<think>internal reasoning</think>The answer is four.",
			want:  "The answer is four.",
		},
		{
			name:  "thinking block removed",
			input: "<thinking>hmm\nmultiline</thinking>Sure.",
			want:  "Sure.",
		},
		{
			name:  "emphasis stripped",
			input: "This is **bold** and *italic* and `code`.",
			want:  "This is bold and italic and code.",
		},
		{
			name:  "headers stripped",
			input: "## Summary\nAll good.",
			want:  "Summary All good.",
		},
		{
			name:  "list bullets stripped",
			input: "- first\n- second\n1. third",
			want:  "first second third",
		},
		{
			name:  "link keeps label",
			input: "See [the docs](https://example.com) for more.",
			want:  "See the docs for more.",
		},
		{
			name:  "code fence markers removed",
			input: "```go\nfmt.Println(1)\n```",
			want:  "fmt.Println(1)",
		},
		{
			name:  "table pipes become spaces",
			input: "a | b | c",
			want:  "a b c",
		},
		{
			name:  "horizontal rule removed",
			input: "above\n---\nbelow",
			want:  "above below",
		},
		{
			name:  "whitespace collapsed",
			input: "  too \n\n many\t spaces  ",
			want:  "too many spaces",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanText(tt.input); got != tt.want {
				t.Errorf("CleanText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
