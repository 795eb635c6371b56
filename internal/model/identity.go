package model

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/opencontainers/go-digest"
)

const (
	// ShortIDLength is the length of the truncated hex id Docker prints.
	ShortIDLength = 12

	// LongIDLength is the length of a full sha256 hex id.
	LongIDLength = 64

	// DefaultTag is assumed when an image name carries no tag.
	DefaultTag = "latest"
)

var (
	hexRegex           = regexp.MustCompile(`^[0-9a-fA-F]+$`)
	namespaceRegex     = regexp.MustCompile(`^[a-z0-9_]{4,30}$`)
	repositoryRegex    = regexp.MustCompile(`^[a-z0-9\-_.]+$`)
	containerNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
)

// ResolveMode records which form of identity an entity was constructed from.
type ResolveMode string

const (
	// ResolveByID means the entity was addressed by a 12 or 64 char hex id.
	ResolveByID ResolveMode = "id"

	// ResolveByName means the entity was addressed by a container name
	// or an image reference.
	ResolveByName ResolveMode = "name"
)

// String returns the string representation of ResolveMode.
func (m ResolveMode) String() string {
	return string(m)
}

// ValidateContentID checks that s is a hex content id of either short (12)
// or long (64) form.
//
// For a long id the first 12 characters are returned as shortID and the
// full string as longID. For a short id longID is empty. Ids are returned
// exactly as given; uppercase hex is valid, and callers matching against
// the daemon's lowercase ids must lowercase them.
func ValidateContentID(s string) (shortID, longID string, err error) {
	switch len(s) {
	case ShortIDLength, LongIDLength:
	default:
		return "", "", fmt.Errorf("%w: id should either be %d or %d characters long, got %d",
			ErrInvalidID, ShortIDLength, LongIDLength, len(s))
	}

	if !hexRegex.MatchString(s) {
		return "", "", fmt.Errorf("%w: %q is not a valid hex string", ErrInvalidID, s)
	}

	if len(s) == LongIDLength {
		return s[:ShortIDLength], s, nil
	}
	return s, "", nil
}

// NormalizeContentID strips the algorithm prefix from a sha256 digest
// ("sha256:<hex>" → "<hex>"). Any other input is returned unchanged.
//
// The daemon reports image ids in digest form, while users and the
// container API use bare hex.
func NormalizeContentID(s string) string {
	if !strings.Contains(s, ":") {
		return s
	}
	d, err := digest.Parse(s)
	if err != nil || d.Algorithm() != digest.SHA256 {
		return s
	}
	return d.Encoded()
}

// ShortID truncates a content id to its short form. Ids shorter than
// ShortIDLength are returned as is.
func ShortID(id string) string {
	id = NormalizeContentID(id)
	if len(id) > ShortIDLength {
		return id[:ShortIDLength]
	}
	return id
}

// ImageReference is a parsed "[namespace/]repository[:tag]" image name.
type ImageReference struct {
	// Raw is the string the reference was parsed from, unmodified.
	Raw string `json:"raw"`

	// Namespace is the optional user/organisation part before the slash.
	Namespace string `json:"namespace,omitempty"`

	// Repository is the image repository name.
	Repository string `json:"repository"`

	// Tag is the optional tag after the colon. Empty when none was given.
	Tag string `json:"tag,omitempty"`
}

// HasTag reports whether the raw reference carried an explicit tag.
func (r ImageReference) HasTag() bool {
	return r.Tag != ""
}

// Name returns "[namespace/]repository" without any tag.
func (r ImageReference) Name() string {
	if r.Namespace != "" {
		return r.Namespace + "/" + r.Repository
	}
	return r.Repository
}

// Resolved returns the reference as used to address the daemon: the tag
// defaults to "latest" when none was given.
func (r ImageReference) Resolved() string {
	tag := r.Tag
	if tag == "" {
		tag = DefaultTag
	}
	return r.Name() + ":" + tag
}

// String returns the resolved form of the reference.
func (r ImageReference) String() string {
	return r.Resolved()
}

// ValidateImageName parses and validates an image name of the form
// "[namespace/]repository[:tag]".
//
// At most one "/" and one ":" are allowed. The namespace must match
// [a-z0-9_]{4,30} and the repository [a-z0-9-_.]+. Namespace, repository
// and tag must be non-empty when their separator is present.
func ValidateImageName(name string) (ImageReference, error) {
	ref := ImageReference{Raw: name}

	if strings.Count(name, "/") > 1 || strings.Count(name, ":") > 1 {
		return ImageReference{}, fmt.Errorf("%w: only one of each is allowed in an image name: / :", ErrInvalidName)
	}

	rest := name
	if ns, after, found := strings.Cut(name, "/"); found {
		if ns == "" || after == "" {
			return ImageReference{}, fmt.Errorf("%w: both namespace and repository must be supplied in %q", ErrInvalidName, name)
		}
		ref.Namespace = ns
		rest = after
	}

	if repo, tag, found := strings.Cut(rest, ":"); found {
		if repo == "" || tag == "" {
			return ImageReference{}, fmt.Errorf("%w: both repository and tag must be supplied in %q", ErrInvalidName, name)
		}
		ref.Repository = repo
		ref.Tag = tag
	} else {
		ref.Repository = rest
	}

	if ref.Namespace != "" && !namespaceRegex.MatchString(ref.Namespace) {
		return ImageReference{}, fmt.Errorf("%w: namespace %q did not match [a-z0-9_]{4,30}", ErrInvalidName, ref.Namespace)
	}
	if !repositoryRegex.MatchString(ref.Repository) {
		return ImageReference{}, fmt.Errorf("%w: repository %q did not match [a-z0-9-_.]+", ErrInvalidName, ref.Repository)
	}

	return ref, nil
}

// ValidateContainerName checks that name is non-empty and only uses the
// characters the daemon accepts for container names: [a-zA-Z0-9_.-].
func ValidateContainerName(name string) error {
	if !containerNameRegex.MatchString(name) {
		return fmt.Errorf("%w: only [a-zA-Z0-9_.-] are valid characters for a container name, got %q",
			ErrInvalidName, name)
	}
	return nil
}
