package suggest

import (
	"math"
	"testing"
)

func TestNormalizeText(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Hello, World! 123", "helloworld123"},
		{"  OK.  ", "ok"},
		{"你好，世界！", "你好世界"},
		{"!!!", ""},
		{"A-B_c", "abc"},
	}
	for _, tc := range cases {
		if got := normalizeText(tc.in); got != tc.want {
			t.Errorf("normalizeText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSimilarityRatio(t *testing.T) {
	if r := similarityRatio("abc", "abc"); r != 1 {
		t.Errorf("identical: %v", r)
	}
	if r := similarityRatio("abc", "xyz"); r != 0 {
		t.Errorf("disjoint: %v", r)
	}
	if r := similarityRatio("", ""); r != 1 {
		t.Errorf("both empty: %v", r)
	}
	// one substitution in 24 chars: 23 matched, 2*23/48
	got := similarityRatio("thankyouforyourhelptoday", "thankyouforyourhelptodey")
	if math.Abs(got-46.0/48.0) > 1e-9 {
		t.Errorf("substitution ratio = %v", got)
	}
}

func TestIsEchoLikeExactMatch(t *testing.T) {
	th := DefaultThresholds()
	if !IsEchoLike("Hello!", "hello", th) {
		t.Error("normalized-equal strings not flagged")
	}
}

func TestIsEchoLikeEmptySides(t *testing.T) {
	th := DefaultThresholds()
	// a suggestion with no comparable content (pure emoji, punctuation)
	// cannot repeat anything the message said
	if IsEchoLike("👍!!!", "anything", th) {
		t.Error("suggestion with no comparable content flagged")
	}
	if IsEchoLike("a real reply", "???", th) {
		t.Error("empty message flagged the suggestion")
	}
	if IsEchoLike("...", "!!!", th) {
		t.Error("both sides empty flagged")
	}
}

func TestIsEchoLikeSubstringRule(t *testing.T) {
	th := DefaultThresholds()
	// suggestion of >=6 normalized chars contained in the message
	if !IsEchoLike("sounds good", "I think that sounds good to me", th) {
		t.Error("contained suggestion not flagged")
	}
	// too short for the substring rule and dissimilar overall
	if IsEchoLike("ok", "ok then see you tomorrow", th) {
		t.Error("short acknowledgement wrongly flagged")
	}
}

func TestIsEchoLikeContainedMessageRule(t *testing.T) {
	th := DefaultThresholds()
	// message (>=8 chars) inside the suggestion, length diff <= 2
	if !IsEchoLike("Ok meet at ten sharp", "meet at ten sharp", th) {
		t.Error("suggestion wrapping the message not flagged")
	}
	// length diff 3 pushes it past the rule, and the ratio stays under
	if IsEchoLike("yes, meet at ten sharp", "meet at ten sharp", th) {
		t.Error("longer wrap wrongly flagged")
	}
}

func TestIsEchoLikeRatioThresholds(t *testing.T) {
	th := DefaultThresholds()
	// both long: one substitution in 24 chars scores ~0.958 > 0.92
	if !IsEchoLike("thank you for your help today", "thank you for your help todey", th) {
		t.Error("near-identical long strings not flagged")
	}
	// both short: ~0.952 stays under the stricter 0.96 cutoff
	if IsEchoLike("thanksalot", "thanksaloot", th) {
		t.Error("short strings flagged under the strict threshold")
	}
}
