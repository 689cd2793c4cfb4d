// Package textstats counts words and characters of a text.
package textstats

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Stats are the counts shown by the word counter. Characters are runes.
type Stats struct {
	Words        int `json:"words"`
	Chars        int `json:"chars"`
	CharsNoSpace int `json:"chars_no_space"`
}

// Count returns the statistics of s. Words are maximal runs of non-whitespace.
func Count(s string) Stats {
	st := Stats{
		Words: len(strings.Fields(s)),
		Chars: utf8.RuneCountInString(s),
	}
	for _, r := range s {
		if !unicode.IsSpace(r) {
			st.CharsNoSpace++
		}
	}
	return st
}
