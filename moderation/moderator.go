// Package moderation masks censored words in message content before it is
// persisted or fanned out.
package moderation

import (
	"bufio"
	"embed"
	"io/fs"
	"sort"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

//go:embed censored/*.txt
var censoredFS embed.FS

// Moderator matches censored words with an Aho-Corasick automaton built once
// at startup and replaces every matched character with the mask rune.
// Matching is case-insensitive and ignores punctuation and spacing inside
// the scanned text, so split-up spellings of a censored word are still
// caught.
type Moderator struct {
	matcher  *goahocorasick.Machine
	maskRune rune
}

// NewModerator builds the automaton from the given word list.
func NewModerator(censoredWords []string, maskRune rune) (*Moderator, error) {
	patterns := make([][]rune, 0, len(censoredWords))
	for _, word := range censoredWords {
		if normalized := normalize([]rune(word)); len(normalized) > 0 {
			patterns = append(patterns, normalized)
		}
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{matcher: m, maskRune: maskRune}, nil
}

// NewModeratorFromEmbedded loads every bundled word list and builds a
// moderator from their union.
func NewModeratorFromEmbedded(maskRune rune) (*Moderator, error) {
	words, err := loadEmbeddedWords()
	if err != nil {
		return nil, err
	}
	return NewModerator(words, maskRune)
}

// Mask returns the content with every censored span replaced by the mask
// rune. Spacing and punctuation of the original text are preserved.
func (m *Moderator) Mask(content string) string {
	original := []rune(content)
	scanned := make([]rune, 0, len(original))
	positions := make([]int, 0, len(original))

	for i, r := range original {
		if isNoise(r) {
			continue
		}
		scanned = append(scanned, unicode.ToLower(r))
		positions = append(positions, i)
	}
	if len(scanned) == 0 {
		return content
	}

	matches := m.matcher.MultiPatternSearch(scanned, false)
	if len(matches) == 0 {
		return content
	}

	for _, match := range matches {
		start := match.Pos
		end := start + len(match.Word)
		if start < 0 || end > len(positions) {
			continue
		}
		for i := positions[start]; i <= positions[end-1]; i++ {
			original[i] = m.maskRune
		}
	}
	return string(original)
}

func normalize(input []rune) []rune {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if isNoise(r) {
			continue
		}
		out = append(out, unicode.ToLower(r))
	}
	return out
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}

func loadEmbeddedWords() ([]string, error) {
	unique := make(map[string]struct{})
	err := fs.WalkDir(censoredFS, "censored", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		f, err := censoredFS.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			word := strings.TrimSpace(scanner.Text())
			if word == "" || strings.HasPrefix(word, "#") {
				continue
			}
			unique[strings.ToLower(word)] = struct{}{}
		}
		return scanner.Err()
	})
	if err != nil {
		return nil, err
	}

	words := make([]string, 0, len(unique))
	for word := range unique {
		words = append(words, word)
	}
	sort.Strings(words)
	return words, nil
}
