package textseg

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxChars bounds segment length when no limit is configured.
// Matches what the upstream synthesis models comfortably handle per call.
const DefaultMaxChars = 200

// Segment is one speakable slice of the input text.
type Segment struct {
	Index int
	Text  string
}

// Split normalizes text and cuts it into ordered segments of at most
// maxChars characters. Whitespace runs collapse to single spaces before
// splitting. Boundaries prefer sentence-ending punctuation, then word
// boundaries; a single word longer than maxChars is hard-cut at maxChars.
// Joining all segment texts with single spaces reproduces the normalized
// input (modulo hard-cut words). Empty or blank input yields nil.
func Split(text string, maxChars int) []Segment {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	words = cutLongWords(words, maxChars)

	var (
		segments []Segment
		cur      []string
		curLen   int
		lastStop = -1 // index into cur of the last sentence-ending word
	)

	emit := func(upto int) {
		segments = append(segments, Segment{Index: len(segments), Text: strings.Join(cur[:upto], " ")})
		rest := append([]string(nil), cur[upto:]...)
		cur = rest
		curLen = 0
		for i, w := range cur {
			if i > 0 {
				curLen++
			}
			curLen += utf8.RuneCountInString(w)
		}
		lastStop = -1
		for i, w := range cur {
			if endsSentence(w) {
				lastStop = i
			}
		}
	}

	for _, w := range words {
		wlen := utf8.RuneCountInString(w)
		need := wlen
		if len(cur) > 0 {
			need++ // joining space
		}
		if curLen+need > maxChars {
			if lastStop >= 0 && lastStop < len(cur)-1 {
				emit(lastStop + 1)
			} else {
				emit(len(cur))
			}
			// the carried remainder plus w may still overflow
			for len(cur) > 0 && curLen+1+wlen > maxChars {
				if lastStop >= 0 && lastStop < len(cur)-1 {
					emit(lastStop + 1)
				} else {
					emit(len(cur))
				}
			}
		}
		if len(cur) > 0 {
			curLen++
		}
		cur = append(cur, w)
		curLen += wlen
		if endsSentence(w) {
			lastStop = len(cur) - 1
		}
	}
	if len(cur) > 0 {
		segments = append(segments, Segment{Index: len(segments), Text: strings.Join(cur, " ")})
	}
	return segments
}

// Join reverses Split for inputs without hard-cut words.
func Join(segments []Segment) string {
	parts := make([]string, len(segments))
	for i, s := range segments {
		parts[i] = s.Text
	}
	return strings.Join(parts, " ")
}

func cutLongWords(words []string, maxChars int) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) <= maxChars {
			out = append(out, w)
			continue
		}
		runes := []rune(w)
		for len(runes) > maxChars {
			out = append(out, string(runes[:maxChars]))
			runes = runes[maxChars:]
		}
		if len(runes) > 0 {
			out = append(out, string(runes))
		}
	}
	return out
}

func endsSentence(word string) bool {
	trimmed := strings.TrimRight(word, `"')]}`+"”’")
	if trimmed == "" {
		return false
	}
	switch r, _ := utf8.DecodeLastRuneInString(trimmed); r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}
