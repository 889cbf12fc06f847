// Package recordkey derives the storage identity for user-generated
// practice artifacts. A key ties one recording (or one text note) to a
// single (accent, content item, sub-question) tuple and must come out the
// same every time that tuple is seen, in any session.
//
// Key construction is pure: no I/O, no randomness, no clock.
package recordkey

import (
	"fmt"
	"strings"
)

// Accent is one of the two English-variant content tracks.
type Accent string

const (
	AccentBritish  Accent = "british"
	AccentAmerican Accent = "american"
)

// IsValid reports whether a is a recognised accent.
func (a Accent) IsValid() bool {
	return a == AccentBritish || a == AccentAmerican
}

// Domain is the content type a recording belongs to.
type Domain string

const (
	DomainSound        Domain = "sound"
	DomainConversation Domain = "conversation"
	DomainExam         Domain = "exam"
	DomainWord         Domain = "word"
)

// IsValid reports whether d is a recognised content domain.
func (d Domain) IsValid() bool {
	switch d {
	case DomainSound, DomainConversation, DomainExam, DomainWord:
		return true
	}
	return false
}

// textSuffix marks keys that address a text note rather than a recording.
const textSuffix = "-text"

// Option refines a key with a sub-question index or a free-form qualifier.
type Option func(*keyParts)

type keyParts struct {
	subIndex  int
	hasSub    bool
	qualifier string
}

// WithSubIndex appends the zero-based index of a sub-question (e.g. the
// card position on a sound page, or the task number of an exam).
func WithSubIndex(i int) Option {
	return func(p *keyParts) {
		p.subIndex = i
		p.hasSub = true
	}
}

// WithQualifier appends a free-form qualifier segment (e.g. a take label).
// An empty qualifier is ignored.
func WithQualifier(q string) Option {
	return func(p *keyParts) { p.qualifier = q }
}

// Key builds the storage key for a recording:
//
//	{accent}-{domain}-{contentID}[-{subIndex}][-q{qualifier}]
//
// The same inputs always produce the same key, and distinct
// (domain, contentID, subIndex, qualifier) tuples never collide: the
// domain is a fixed vocabulary containing no hyphens, the sub-index is
// numeric, and the contentID and qualifier are escaped so neither can
// forge a separator. The fixed "q" tag keeps a numeric qualifier
// distinguishable from a sub-index.
func Key(accent Accent, domain Domain, contentID string, opts ...Option) string {
	var p keyParts
	for _, o := range opts {
		o(&p)
	}

	var b strings.Builder
	b.WriteString(string(accent))
	b.WriteByte('-')
	b.WriteString(string(domain))
	b.WriteByte('-')
	b.WriteString(escapeID(contentID))
	if p.hasSub {
		fmt.Fprintf(&b, "-%d", p.subIndex)
	}
	if p.qualifier != "" {
		b.WriteString("-q")
		b.WriteString(escapeID(p.qualifier))
	}
	return b.String()
}

// TextKey builds the storage key for a text note attached to the same
// content item. It is the recording key plus a "-text" suffix, so text
// notes and recordings for one item never share a key.
func TextKey(accent Accent, domain Domain, contentID string, opts ...Option) string {
	return Key(accent, domain, contentID, opts...) + textSuffix
}

// IsTextKey reports whether key addresses a text note.
func IsTextKey(key string) bool {
	return strings.HasSuffix(key, textSuffix)
}

// DomainOf extracts the content domain from a key built by [Key] or
// [TextKey]. Accents and domains contain no hyphens, so the domain is
// always the second segment. It returns false for malformed keys or
// unknown domains.
func DomainOf(key string) (Domain, bool) {
	parts := strings.SplitN(key, "-", 3)
	if len(parts) < 3 {
		return "", false
	}
	d := Domain(parts[1])
	if !d.IsValid() {
		return "", false
	}
	return d, true
}

// escapeID makes a content ID or qualifier safe to embed between hyphen
// separators. Content IDs come from static content JSON and are normally
// short alphanumerics ("th01", "42"); escaping only has to guarantee that
// a value containing a hyphen cannot produce the same key as a different
// tuple whose segments happen to line up.
func escapeID(id string) string {
	if !strings.ContainsAny(id, "-~") {
		return id
	}
	id = strings.ReplaceAll(id, "~", "~~")
	return strings.ReplaceAll(id, "-", "~_")
}
