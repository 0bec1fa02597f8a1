package doc

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DomainRevision separates revision tags from any other hash in the system.
const DomainRevision = "todosync/revision/v1"

// tagLen is the number of hex characters kept from the digest.
const tagLen = 32

// ErrBadRevision is returned when a revision string cannot be parsed.
var ErrBadRevision = errors.New("malformed revision")

// Revision identifies one version of a record.
//
// Gen counts edits along the record's history; Tag is derived from the
// content and the parent revision (see Record.Parent). Revision is a
// comparable value.
type Revision struct {
	Gen int64
	Tag string
}

// IsZero reports whether r is the "no revision" value used as the expected
// revision when creating a record.
func (r Revision) IsZero() bool {
	return r.Gen == 0 && r.Tag == ""
}

// Equal compares generation and tag.
func (r Revision) Equal(o Revision) bool {
	return r == o
}

// String renders "<gen>-<tag>", or "" for the zero revision.
func (r Revision) String() string {
	if r.IsZero() {
		return ""
	}
	return strconv.FormatInt(r.Gen, 10) + "-" + r.Tag
}

// MarshalText implements encoding.TextMarshaler.
func (r Revision) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Revision) UnmarshalText(b []byte) error {
	parsed, err := ParseRevision(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRevision parses the "<gen>-<tag>" form. The empty string parses to
// the zero revision.
func ParseRevision(s string) (Revision, error) {
	if s == "" {
		return Revision{}, nil
	}
	genStr, tag, ok := strings.Cut(s, "-")
	if !ok || tag == "" {
		return Revision{}, fmt.Errorf("%w: %q", ErrBadRevision, s)
	}
	gen, err := strconv.ParseInt(genStr, 10, 64)
	if err != nil || gen < 1 {
		return Revision{}, fmt.Errorf("%w: %q", ErrBadRevision, s)
	}
	return Revision{Gen: gen, Tag: tag}, nil
}

// MustParseRevision is like ParseRevision but panics on error.
// Use only in tests or with known-good input.
func MustParseRevision(s string) Revision {
	r, err := ParseRevision(s)
	if err != nil {
		panic(err)
	}
	return r
}

// NextRevision computes the revision that follows base for the given content.
// A zero base yields generation 1.
func NextRevision(base Revision, c Content) Revision {
	return Revision{
		Gen: base.Gen + 1,
		Tag: ContentTag(base, c),
	}
}

// ContentTag computes the content-derived tag of a revision whose parent is
// parent.
//
// Format: hex(SHA256(domain + 0x00 + canonical))[:32]
func ContentTag(parent Revision, c Content) string {
	canonical := MarshalCanonical(map[string]any{
		"completed": c.Completed,
		"deleted":   c.Deleted,
		"id":        c.ID,
		"parent":    parent.String(),
		"title":     c.Title,
	})

	h := sha256.New()
	h.Write([]byte(DomainRevision))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))[:tagLen]
}

// VerifyTag checks that rec.Rev was derived from rec's content and the first
// entry of its history.
func VerifyTag(rec Record) error {
	if rec.Rev.Gen < 1 || rec.Rev.Tag == "" {
		return fmt.Errorf("%w: empty revision for %q", ErrBadRevision, rec.ID)
	}
	parent := rec.Parent()
	if parent.Gen != rec.Rev.Gen-1 {
		return fmt.Errorf("%w: %s does not follow %q", ErrBadRevision, rec.Rev, parent)
	}
	if want := ContentTag(parent, rec.Content()); want != rec.Rev.Tag {
		return fmt.Errorf("%w: tag of %s does not match content", ErrBadRevision, rec.Rev)
	}
	return nil
}

// Wins reports whether a beats b under the conflict rule: the greater
// generation wins, and equal generations fall back to the lexicographically
// greater tag. Equal revisions do not beat each other.
func Wins(a, b Revision) bool {
	if a.Gen != b.Gen {
		return a.Gen > b.Gen
	}
	return a.Tag > b.Tag
}

// Winner returns whichever of a and b wins under Wins.
func Winner(a, b Revision) Revision {
	if Wins(b, a) {
		return b
	}
	return a
}
