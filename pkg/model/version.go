package model

import (
	"strings"
	"unicode"

	"github.com/oneconcern/vkv/pkg/status"
	"github.com/segmentio/ksuid"
)

// DefaultBranch to use when none is specified
const DefaultBranch = "main"

// SnapshotID uniquely identifies an immutable snapshot
type SnapshotID string

// NewSnapshotID generates a new time-ordered snapshot id
func NewSnapshotID() SnapshotID {
	return SnapshotID(ksuid.New().String())
}

// ParseSnapshotID validates the string representation of a snapshot id
func ParseSnapshotID(s string) (SnapshotID, error) {
	if _, err := ksuid.Parse(s); err != nil {
		return "", status.ErrInvalidRef.Wrapf("%q is not a snapshot id: %w", s, err)
	}
	return SnapshotID(s), nil
}

func (s SnapshotID) String() string { return string(s) }

// IsZero tells if this id is unset
func (s SnapshotID) IsZero() bool { return s == "" }

// VersionKind tells how a version reference should be resolved
type VersionKind uint8

// Kinds of version references
const (
	// VersionAny resolves a name as a snapshot id, then a branch, then a tag
	VersionAny VersionKind = iota
	VersionSnapshot
	VersionBranch
	VersionTag
)

func (k VersionKind) String() string {
	switch k {
	case VersionSnapshot:
		return "snapshot"
	case VersionBranch:
		return "branch"
	case VersionTag:
		return "tag"
	default:
		return "any"
	}
}

// VersionRef designates a version of the store: a snapshot id, a branch or a tag
type VersionRef struct {
	Kind VersionKind `json:"kind" yaml:"kind"`
	Name string      `json:"name" yaml:"name"`
}

// SnapshotVersion refers to a snapshot by id
func SnapshotVersion(id SnapshotID) VersionRef {
	return VersionRef{Kind: VersionSnapshot, Name: string(id)}
}

// BranchVersion refers to the tip of a branch
func BranchVersion(name string) VersionRef {
	return VersionRef{Kind: VersionBranch, Name: name}
}

// TagVersion refers to a tagged snapshot
func TagVersion(name string) VersionRef {
	return VersionRef{Kind: VersionTag, Name: name}
}

// ParseVersionRef parses "snapshot:<id>", "branch:<name>", "tag:<name>" or a bare name.
//
// A bare name is resolved in order as a snapshot id, a branch and a tag.
func ParseVersionRef(s string) (VersionRef, error) {
	ref := VersionRef{Kind: VersionAny, Name: s}
	if i := strings.IndexByte(s, ':'); i > 0 {
		switch s[:i] {
		case "snapshot":
			ref = SnapshotVersion(SnapshotID(s[i+1:]))
		case "branch":
			ref = BranchVersion(s[i+1:])
		case "tag":
			ref = TagVersion(s[i+1:])
		}
	}
	if err := ref.Validate(); err != nil {
		return VersionRef{}, err
	}
	return ref, nil
}

// Validate the name carried by this reference
func (v VersionRef) Validate() error {
	if v.Kind == VersionSnapshot {
		_, err := ParseSnapshotID(v.Name)
		return err
	}
	return ValidateRefName(v.Name)
}

func (v VersionRef) String() string {
	if v.Kind == VersionAny {
		return v.Name
	}
	return v.Kind.String() + ":" + v.Name
}

// ValidateRefName checks that a branch or tag name is usable
func ValidateRefName(name string) error {
	if strings.TrimSpace(name) == "" {
		return status.ErrInvalidRef.Wrapf("name is required")
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") || strings.Contains(name, "//") {
		return status.ErrInvalidRef.Wrapf("%q has an empty path segment", name)
	}
	for _, r := range name {
		if r == ':' || unicode.IsSpace(r) || unicode.IsControl(r) {
			return status.ErrInvalidRef.Wrapf("%q contains a forbidden character %q", name, r)
		}
	}
	return nil
}
