package suggest

import "strings"

// Thresholds tunes the echo filter. The defaults are empirically tuned
// values carried as configuration.
type Thresholds struct {
	SubstringMinLen  int
	ContainedMinLen  int
	ContainedMaxDiff int
	LongRatioMinLen  int
	LongRatio        float64
	ShortRatio       float64
}

// DefaultThresholds returns the tuned defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SubstringMinLen:  6,
		ContainedMinLen:  8,
		ContainedMaxDiff: 2,
		LongRatioMinLen:  12,
		LongRatio:        0.92,
		ShortRatio:       0.96,
	}
}

// normalizeText reduces a string to its comparable core: lowercased,
// whitespace removed, restricted to CJK ideographs, latin letters and
// digits.
func normalizeText(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= '一' && r <= '鿿':
			sb.WriteRune(r)
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// IsEchoLike judges whether a suggestion merely repeats the message it
// answers. Comparison runs on normalized forms and rune lengths.
func IsEchoLike(suggestion, message string, th Thresholds) bool {
	a := normalizeText(suggestion)
	b := normalizeText(message)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}

	la := len([]rune(a))
	lb := len([]rune(b))
	if la >= th.SubstringMinLen && strings.Contains(b, a) {
		return true
	}
	if lb >= th.ContainedMinLen && strings.Contains(a, b) && la-lb <= th.ContainedMaxDiff {
		return true
	}

	threshold := th.ShortRatio
	if la >= th.LongRatioMinLen && lb >= th.LongRatioMinLen {
		threshold = th.LongRatio
	}
	return similarityRatio(a, b) > threshold
}

// similarityRatio is the Ratcliff/Obershelp measure over runes:
// 2*matches / (len(a)+len(b)), with matches summed over the longest
// common substring and, recursively, the pieces on either side of it.
func similarityRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(matchingRunes(ra, rb)) / float64(total)
}

func matchingRunes(a, b []rune) int {
	ai, bi, size := longestCommonRun(a, b)
	if size == 0 {
		return 0
	}
	return size +
		matchingRunes(a[:ai], b[:bi]) +
		matchingRunes(a[ai+size:], b[bi+size:])
}

// longestCommonRun finds the longest common substring of a and b,
// returning its start offsets and length. O(len(a)*len(b)) time with a
// single-row table; inputs here are short chat strings.
func longestCommonRun(a, b []rune) (ai, bi, size int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > size {
					size = cur[j]
					ai = i - size
					bi = j - size
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return ai, bi, size
}
