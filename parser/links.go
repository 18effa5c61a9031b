package parser

import (
	"net/url"
	"strings"
)

// Resolver turns hrefs found on listing and detail pages into absolute URLs
// under the catalog prefix. The site mixes "catalogue/x", "x" and
// "../../x" forms for the same resources.
type Resolver struct {
	base   string
	prefix string
}

// NewResolver builds a resolver for baseURL (a trailing slash is added when
// missing) and the listing prefix, e.g. "catalogue/".
func NewResolver(baseURL, prefix string) *Resolver {
	prefix = strings.TrimLeft(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Resolver{
		base:   strings.TrimRight(baseURL, "/") + "/",
		prefix: prefix,
	}
}

// Base returns the catalog base URL with its trailing slash.
func (r *Resolver) Base() string {
	return r.base
}

// Resolve returns href unchanged when it is already absolute, otherwise the
// joined URL base + prefix + path. An empty href resolves to "".
func (r *Resolver) Resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if isAbsolute(href) {
		return href
	}

	path := stripRelativeMarkers(href)
	path = strings.TrimLeft(path, "/")
	if !strings.HasPrefix(path, r.prefix) {
		path = r.prefix + path
	}
	return r.base + path
}

func isAbsolute(href string) bool {
	parsed, err := url.Parse(href)
	if err != nil {
		return false
	}
	return parsed.IsAbs() && parsed.Host != ""
}

func stripRelativeMarkers(href string) string {
	for {
		switch {
		case strings.Contains(href, "../"):
			href = strings.ReplaceAll(href, "../", "")
		case strings.HasPrefix(href, "./"):
			href = strings.TrimPrefix(href, "./")
		case strings.Contains(href, "/./"):
			href = strings.ReplaceAll(href, "/./", "/")
		default:
			return href
		}
	}
}

// Slug returns the second-to-last path segment of a detail page URL, which
// the site uses as a stable item identifier:
//
//	https://books.toscrape.com/catalogue/a-light-in-the-attic_1000/index.html
//	                                     ^^^^^^^^^^^^^^^^^^^^^^^^
func Slug(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	segments := strings.Split(strings.TrimRight(parsed.Path, "/"), "/")
	if len(segments) < 2 {
		return "", errNoSlug
	}
	slug := strings.TrimSpace(segments[len(segments)-2])
	if slug == "" {
		return "", errNoSlug
	}
	return slug, nil
}
