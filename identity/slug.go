package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSlugLen = 80

var (
	nonAlnumRegex = regexp.MustCompile(`[^a-z0-9]+`)
	stripMarks    = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Slug builds the URL slug of a listing from its title and reference
// number. The reference suffix keeps slugs unique across listings that
// share a title.
func Slug(title, reference string) string {
	base := slugify(title)
	if len(base) > maxSlugLen {
		base = base[:maxSlugLen]
		if i := strings.LastIndexByte(base, '-'); i > 0 {
			base = base[:i]
		}
	}
	ref := slugify(reference)
	switch {
	case base == "":
		return ref
	case ref == "":
		return base
	}
	return base + "-" + ref
}

// PublicPath is where the website serves a listing.
func PublicPath(slug string) string {
	return "/properties/" + slug
}

// PrefixedReference applies a feed's reference prefix unless the reference
// already carries it.
func PrefixedReference(prefix, reference string) string {
	reference = strings.TrimSpace(reference)
	if reference == "" || prefix == "" || strings.HasPrefix(reference, prefix) {
		return reference
	}
	return prefix + reference
}

// ContentHash returns a short hex digest of data, used to name stored
// objects by content.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

func slugify(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err == nil {
		s = folded
	}
	s = nonAlnumRegex.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}
