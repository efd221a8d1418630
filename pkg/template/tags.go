package template

import (
	"regexp"
	"strings"
)

const maxTagLen = 50

var (
	tagRe     = regexp.MustCompile(`(?:^|[^\w#/])#([\w/]+)`)
	numericRe = regexp.MustCompile(`^[0-9_]+$`)
)

// ExtractAllTags returns the distinct #tags in text, in order of appearance,
// without the leading hash. Purely numeric tokens are not tags.
func ExtractAllTags(text string) []string {
	var tags []string
	seen := map[string]bool{}
	for _, m := range tagRe.FindAllStringSubmatch(text, -1) {
		tag := strings.TrimRight(m[1], "/")
		if tag == "" || len(tag) > maxTagLen || numericRe.MatchString(tag) || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}
