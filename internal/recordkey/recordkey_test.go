package recordkey_test

import (
	"testing"

	"github.com/vocalise-app/vocalise/internal/recordkey"
)

func TestKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		got  string
		want string
	}{
		{
			name: "sound with sub-index",
			got:  recordkey.Key(recordkey.AccentBritish, recordkey.DomainSound, "th01", recordkey.WithSubIndex(2)),
			want: "british-sound-th01-2",
		},
		{
			name: "conversation without sub-index",
			got:  recordkey.Key(recordkey.AccentAmerican, recordkey.DomainConversation, "12"),
			want: "american-conversation-12",
		},
		{
			name: "exam with sub-index",
			got:  recordkey.Key(recordkey.AccentBritish, recordkey.DomainExam, "ex03", recordkey.WithSubIndex(0)),
			want: "british-exam-ex03-0",
		},
		{
			name: "qualifier segment",
			got:  recordkey.Key(recordkey.AccentBritish, recordkey.DomainWord, "7", recordkey.WithQualifier("slow")),
			want: "british-word-7-qslow",
		},
		{
			name: "numeric qualifier stays distinct from a sub-index",
			got:  recordkey.Key(recordkey.AccentBritish, recordkey.DomainSound, "th01", recordkey.WithQualifier("1")),
			want: "british-sound-th01-q1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, tt.got)
			}
		})
	}
}

func TestTextKey(t *testing.T) {
	t.Parallel()

	got := recordkey.TextKey(recordkey.AccentBritish, recordkey.DomainConversation, "12")
	want := "british-conversation-12-text"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if !recordkey.IsTextKey(got) {
		t.Fatalf("IsTextKey(%q) = false, want true", got)
	}
	if recordkey.IsTextKey(recordkey.Key(recordkey.AccentBritish, recordkey.DomainConversation, "12")) {
		t.Fatal("IsTextKey reported true for a recording key")
	}
}

func TestDomainOf(t *testing.T) {
	t.Parallel()

	key := recordkey.Key(recordkey.AccentAmerican, recordkey.DomainExam, "ex01", recordkey.WithSubIndex(3))
	if d, ok := recordkey.DomainOf(key); !ok || d != recordkey.DomainExam {
		t.Fatalf("DomainOf(%q) = %q, %v", key, d, ok)
	}
	if d, ok := recordkey.DomainOf(recordkey.TextKey(recordkey.AccentBritish, recordkey.DomainWord, "w1")); !ok || d != recordkey.DomainWord {
		t.Fatalf("DomainOf text key = %q, %v", d, ok)
	}
	for _, bad := range []string{"", "british", "british-poem-x", "loose"} {
		if _, ok := recordkey.DomainOf(bad); ok {
			t.Fatalf("DomainOf(%q) = true, want false", bad)
		}
	}
}

func TestKeyDeterministic(t *testing.T) {
	t.Parallel()

	for range 100 {
		a := recordkey.Key(recordkey.AccentAmerican, recordkey.DomainExam, "ex01", recordkey.WithSubIndex(3))
		b := recordkey.Key(recordkey.AccentAmerican, recordkey.DomainExam, "ex01", recordkey.WithSubIndex(3))
		if a != b {
			t.Fatalf("same tuple produced different keys: %q vs %q", a, b)
		}
	}
}

// TestQualifierCannotForgeOtherSegments pins the pairs most likely to
// collide: a numeric qualifier against a sub-index, a hyphenated
// qualifier against a sub-index plus qualifier, and a "text" qualifier
// against a text-note key.
func TestQualifierCannotForgeOtherSegments(t *testing.T) {
	t.Parallel()

	withSub := recordkey.Key(recordkey.AccentBritish, recordkey.DomainSound, "th01", recordkey.WithSubIndex(1))
	withQual := recordkey.Key(recordkey.AccentBritish, recordkey.DomainSound, "th01", recordkey.WithQualifier("1"))
	if withSub == withQual {
		t.Fatalf("sub-index 1 and qualifier %q produced the same key %q", "1", withSub)
	}

	hyphenated := recordkey.Key(recordkey.AccentBritish, recordkey.DomainSound, "th01", recordkey.WithQualifier("3-x"))
	split := recordkey.Key(recordkey.AccentBritish, recordkey.DomainSound, "th01", recordkey.WithSubIndex(3), recordkey.WithQualifier("x"))
	if hyphenated == split {
		t.Fatalf("qualifier %q and (sub-index 3, qualifier %q) produced the same key %q", "3-x", "x", hyphenated)
	}

	textish := recordkey.Key(recordkey.AccentBritish, recordkey.DomainSound, "th01", recordkey.WithQualifier("text"))
	textKey := recordkey.TextKey(recordkey.AccentBritish, recordkey.DomainSound, "th01")
	if textish == textKey {
		t.Fatalf("qualifier %q forged a text key %q", "text", textKey)
	}
	if recordkey.IsTextKey(textish) {
		t.Fatalf("IsTextKey(%q) = true for a recording key", textish)
	}
}

// TestKeyInjective enumerates a practical slice of the input space and
// verifies pairwise-distinct tuples produce pairwise-distinct keys,
// including IDs that contain separator characters.
func TestKeyInjective(t *testing.T) {
	t.Parallel()

	domains := []recordkey.Domain{
		recordkey.DomainSound,
		recordkey.DomainConversation,
		recordkey.DomainExam,
		recordkey.DomainWord,
	}
	ids := []string{"1", "2", "12", "th01", "th-01", "th~01", "a-1-2", "a", "1-2"}
	qualifiers := []string{"", "slow", "retake", "1", "3", "3-x", "q1", "text"}

	type tuple struct {
		d   recordkey.Domain
		id  string
		sub int
		hasSub bool
		q   string
	}

	seen := make(map[string]tuple)
	check := func(tp tuple, key string) {
		if prev, ok := seen[key]; ok {
			t.Fatalf("collision on %q: %+v and %+v", key, prev, tp)
		}
		seen[key] = tp
	}

	for _, d := range domains {
		for _, id := range ids {
			for _, q := range qualifiers {
				var opts []recordkey.Option
				if q != "" {
					opts = append(opts, recordkey.WithQualifier(q))
				}
				check(tuple{d: d, id: id, q: q},
					recordkey.Key(recordkey.AccentBritish, d, id, opts...))
				for sub := range 4 {
					withSub := append([]recordkey.Option{recordkey.WithSubIndex(sub)}, opts...)
					check(tuple{d: d, id: id, sub: sub, hasSub: true, q: q},
						recordkey.Key(recordkey.AccentBritish, d, id, withSub...))
				}
			}
		}
	}

	// Accents partition the key space: any tuple keyed under the other
	// accent must not collide with the british keys above.
	for _, d := range domains {
		for _, id := range ids {
			key := recordkey.Key(recordkey.AccentAmerican, d, id)
			if prev, ok := seen[key]; ok {
				t.Fatalf("accent collision on %q with %+v", key, prev)
			}
		}
	}
}
