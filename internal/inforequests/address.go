package inforequests

import (
	"math/rand"
	"strings"
)

const (
	// Token length bounds for unique reply addresses. Allocation starts at
	// the minimum and grows by one on every insert conflict.
	MinTokenLength = 4
	MaxTokenLength = 10
)

const (
	vowels     = "aeiuy"
	consonants = "bcdfghjklmnprstvxz"
)

// RandomReadableToken generates a pronounceable lowercase token of the
// given length: alternating consonant/vowel pairs, so collisions are easy
// for a human to read back from an address book.
func RandomReadableToken(rnd *rand.Rand, length int) string {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		if i%2 == 0 {
			b.WriteByte(consonants[rnd.Intn(len(consonants))])
		} else {
			b.WriteByte(vowels[rnd.Intn(len(vowels))])
		}
	}
	return b.String()
}

// FormatAddress expands the configured address template, replacing the
// {token} placeholder.
func FormatAddress(template, token string) string {
	return strings.ReplaceAll(template, "{token}", token)
}
