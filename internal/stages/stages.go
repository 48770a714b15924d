// Package stages provides the reference text stages: normalize, sentences,
// tokens and persist.
package stages

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"corpora/internal/pipeline"
)

const (
	KeyNormalize = "normalize"
	KeySentences = "sentences"
	KeyTokens    = "tokens"
	KeyPersist   = "persist"
)

// Normalize applies NFC normalization and collapses whitespace runs within
// each line. Blank lines between paragraphs are kept as a single newline.
type Normalize struct{}

// Key implements pipeline.Stage.
func (Normalize) Key() string { return KeyNormalize }

// Apply implements pipeline.Stage.
func (Normalize) Apply(_ context.Context, ws *pipeline.Workspace) error {
	text := norm.NFC.String(ws.Text)
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := lines[:0]
	for _, line := range lines {
		if collapsed := strings.Join(strings.Fields(line), " "); collapsed != "" {
			out = append(out, collapsed)
		}
	}
	ws.Text = strings.Join(out, "\n")
	return nil
}

// Sentences splits text after ., ! or ? followed by whitespace, and at line
// breaks.
type Sentences struct{}

// Key implements pipeline.Stage.
func (Sentences) Key() string { return KeySentences }

// Apply implements pipeline.Stage.
func (Sentences) Apply(_ context.Context, ws *pipeline.Workspace) error {
	ws.Sentences = SplitSentences(ws.Text, ws.Sentences[:0])
	return nil
}

// SplitSentences appends the sentences of text to dst.
func SplitSentences(text string, dst []string) []string {
	runes := []rune(text)
	start := 0
	emit := func(end int) {
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			dst = append(dst, s)
		}
		start = end
	}
	for i, r := range runes {
		switch {
		case r == '\n':
			emit(i + 1)
		case r == '.' || r == '!' || r == '?':
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				emit(i + 1)
			}
		}
	}
	emit(len(runes))
	return dst
}

// Tokens lowercases text and splits it into letter, digit and hyphen runs.
type Tokens struct{}

// Key implements pipeline.Stage.
func (Tokens) Key() string { return KeyTokens }

// Apply implements pipeline.Stage.
func (Tokens) Apply(_ context.Context, ws *pipeline.Workspace) error {
	ws.Tokens = Tokenize(ws.Text, ws.Tokens[:0])
	return nil
}

// Tokenize appends the tokens of text to dst.
func Tokenize(text string, dst []string) []string {
	var current strings.Builder
	flush := func() {
		if current.Len() == 0 {
			return
		}
		if token := strings.Trim(current.String(), "-"); token != "" {
			dst = append(dst, token)
		}
		current.Reset()
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' {
			current.WriteRune(unicode.ToLower(r))
			continue
		}
		flush()
	}
	flush()
	return dst
}
