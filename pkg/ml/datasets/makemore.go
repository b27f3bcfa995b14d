// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"slices"
	"strings"

	"github.com/gomlx/scalargrad/pkg/ml/train"
	"github.com/gomlx/scalargrad/pkg/support/fsutil"
	"github.com/pkg/errors"
)

// EndToken marks both the padding before the start of a word and its end. It is always token 0.
const EndToken = '.'

// ReadWords reads one word per line from filePath. Empty lines are skipped, and "~" in the path
// is replaced by the user's home directory.
func ReadWords(filePath string) ([]string, error) {
	filePath, err := fsutil.ReplaceTildeInDir(filePath)
	if err != nil {
		return nil, err
	}
	words, err := fsutil.ReadLines(filePath)
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, errors.Errorf("no words found in %q", filePath)
	}
	return words, nil
}

// Vocabulary maps the characters of a word list to tokens: EndToken is 0, and the remaining characters
// are numbered from 1 in sorted order.
type Vocabulary struct {
	charToToken map[rune]int
	tokenToChar []rune
}

// NewVocabulary creates the Vocabulary with all characters used in words.
func NewVocabulary(words []string) *Vocabulary {
	seen := make(map[rune]bool)
	for _, word := range words {
		for _, c := range word {
			if c != EndToken {
				seen[c] = true
			}
		}
	}
	chars := make([]rune, 0, len(seen))
	for c := range seen {
		chars = append(chars, c)
	}
	slices.Sort(chars)
	v := &Vocabulary{
		charToToken: make(map[rune]int, len(chars)+1),
		tokenToChar: append([]rune{EndToken}, chars...),
	}
	for token, c := range v.tokenToChar {
		v.charToToken[c] = token
	}
	return v
}

// Size returns the number of tokens, including EndToken.
func (v *Vocabulary) Size() int { return len(v.tokenToChar) }

// Token returns the token of the character c, or false if it is not in the vocabulary.
func (v *Vocabulary) Token(c rune) (token int, found bool) {
	token, found = v.charToToken[c]
	return
}

// Char returns the character for token. It panics if token is out of range.
func (v *Vocabulary) Char(token int) rune {
	return v.tokenToChar[token]
}

// Encode converts word to tokens.
func (v *Vocabulary) Encode(word string) ([]int, error) {
	tokens := make([]int, 0, len(word))
	for _, c := range word {
		token, found := v.charToToken[c]
		if !found {
			return nil, errors.Errorf("character %q of word %q not in vocabulary", c, word)
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

// Decode converts tokens back to a string.
func (v *Vocabulary) Decode(tokens []int) string {
	var sb strings.Builder
	for _, token := range tokens {
		sb.WriteRune(v.Char(token))
	}
	return sb.String()
}

// Window is one context of blockSize tokens, and the token that follows it.
type Window struct {
	Context []int
	Next    int
}

// BuildWindows returns the context windows of each word: the word is padded with blockSize EndToken
// before it and one after it, and each of its characters (and the final EndToken) is predicted from the
// blockSize tokens preceding it.
//
// E.g.: with blockSize=2, "ab" yields [..]→a, [.a]→b and [ab]→'.'.
func BuildWindows(words []string, vocab *Vocabulary, blockSize int) ([]Window, error) {
	if blockSize <= 0 {
		return nil, errors.Errorf("blockSize must be > 0, got %d", blockSize)
	}
	var windows []Window
	for _, word := range words {
		tokens, err := vocab.Encode(word)
		if err != nil {
			return nil, err
		}
		padded := make([]int, blockSize, blockSize+len(tokens)+1)
		padded = append(append(padded, tokens...), 0)
		for ii := 0; ii+blockSize < len(padded); ii++ {
			windows = append(windows, Window{
				Context: slices.Clone(padded[ii : ii+blockSize]),
				Next:    padded[ii+blockSize],
			})
		}
	}
	return windows, nil
}

// OneHot returns a vector of size numClasses, with 1 at position index and 0 elsewhere.
// It panics if index is out of range.
func OneHot(index, numClasses int) []float64 {
	v := make([]float64, numClasses)
	v[index] = 1
	return v
}

// EncodeContext returns the concatenated one-hot encodings of the tokens, the inputs of a model
// trained on BuildDataset examples.
func EncodeContext(tokens []int, numClasses int) []float64 {
	inputs := make([]float64, 0, len(tokens)*numClasses)
	for _, token := range tokens {
		inputs = append(inputs, OneHot(token, numClasses)...)
	}
	return inputs
}

// BuildDataset converts words to examples: the inputs are the concatenated one-hot encodings of the
// context tokens (blockSize*vocab.Size() values), and the labels are the one-hot encoding of the next token.
func BuildDataset(words []string, vocab *Vocabulary, blockSize int) ([]train.Example, error) {
	windows, err := BuildWindows(words, vocab, blockSize)
	if err != nil {
		return nil, err
	}
	numClasses := vocab.Size()
	examples := make([]train.Example, len(windows))
	for ii, w := range windows {
		examples[ii] = train.Example{Inputs: EncodeContext(w.Context, numClasses), Labels: OneHot(w.Next, numClasses)}
	}
	return examples, nil
}
