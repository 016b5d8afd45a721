package embedding

import "strings"

// WordCount approximates a tokenizer by counting whitespace separated
// words. Empty and blank strings count as zero.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
