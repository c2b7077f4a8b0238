// Package dedup implements the near-duplicate detector: a content-addressed
// SimHash cache with LRU eviction and exact/approximate lookup.
package dedup

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"math/bits"
	"regexp"
	"strings"
	"unicode"
)

var (
	urlRe        = regexp.MustCompile(`https?://\S+`)
	mentionRe    = regexp.MustCompile(`@\w+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Normalize lowercases, strips URLs and @-mentions, and collapses whitespace.
// The result is the canonical form all hashes are computed over.
func Normalize(text string) string {
	s := strings.ToLower(text)
	s = urlRe.ReplaceAllString(s, " ")
	s = mentionRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// StripEmoji removes emoji and pictographic symbols. Used to decide whether a
// message is emoji-only residue too short to fingerprint.
func StripEmoji(text string) string {
	var b strings.Builder
	for _, r := range text {
		if isEmoji(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF: // pictographs, emoticons, symbols
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r == 0xFE0F || r == 0x200D: // variation selector, ZWJ
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF: // regional indicators
		return true
	case unicode.Is(unicode.Sk, r):
		return true
	}
	return false
}

// ExactHash returns the hex MD5 of the normalized text.
func ExactHash(text string) string {
	sum := md5.Sum([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// Simhash computes a 64-bit SimHash over rune unigrams, 2-grams and 3-grams
// of the normalized text. Identical texts always produce identical hashes.
func Simhash(text string) uint64 {
	tokens := ngrams(Normalize(text))
	if len(tokens) == 0 {
		return 0
	}

	var vec [64]int
	for _, tok := range tokens {
		h := tokenHash(tok)
		for i := 0; i < 64; i++ {
			if h&(1<<uint(i)) != 0 {
				vec[i]++
			} else {
				vec[i]--
			}
		}
	}

	var fp uint64
	for i := 0; i < 64; i++ {
		if vec[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// ngrams emits rune-level unigrams, 2-grams and 3-grams, skipping tokens that
// are only whitespace. Rune-level grams handle CJK and Latin text uniformly.
func ngrams(s string) []string {
	runes := []rune(s)
	out := make([]string, 0, 3*len(runes))
	for n := 1; n <= 3; n++ {
		for i := 0; i+n <= len(runes); i++ {
			tok := string(runes[i : i+n])
			if strings.TrimSpace(tok) == "" {
				continue
			}
			out = append(out, tok)
		}
	}
	return out
}

// tokenHash derives a 64-bit hash from the MD5 of a token.
func tokenHash(tok string) uint64 {
	sum := md5.Sum([]byte(tok))
	return binary.BigEndian.Uint64(sum[:8])
}

// HammingDistance counts differing bits between two fingerprints.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similarity maps Hamming distance to [0,1]: 1 - distance/64.
func Similarity(a, b uint64) float64 {
	return 1 - float64(HammingDistance(a, b))/64
}
