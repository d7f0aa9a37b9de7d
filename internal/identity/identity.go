package identity

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var listingPrefixes = map[string]string{
	"venue": "VEN",
}

const defaultPrefix = "LST"

// GenerateListingID returns a prefixed, time-ordered unique id like
// "VEN-018e12345678abcd". Called exactly once per entity, at creation;
// the id never changes afterwards.
func GenerateListingID(entityType string) string {
	prefix, ok := listingPrefixes[entityType]
	if !ok {
		prefix = defaultPrefix
	}

	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does; a v4 id loses
		// time ordering but keeps uniqueness.
		id = uuid.New()
	}

	short := strings.ReplaceAll(id.String(), "-", "")[:16]
	return prefix + "-" + short
}

var (
	slugInvalid    = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSeparators = regexp.MustCompile(`[\s-]+`)
)

// GenerateSlug derives a URL-safe slug from an entity name. Deterministic for
// any name that survives stripping; a name with no usable characters gets a
// short random token because empty slugs are invalid for routing.
func GenerateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = slugInvalid.ReplaceAllString(slug, "")
	slug = slugSeparators.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")

	if slug == "" {
		return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	}

	return slug
}
