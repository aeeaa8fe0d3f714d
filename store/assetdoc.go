package store

import (
	"fmt"
	"regexp"
	"strings"
)

var fragmentTag = regexp.MustCompile(`^\s*<([A-Za-z_][\w.:-]*)`)

// UpdateDocument applies an @UPDATE_ASSET@ change to an asset document.
// args is either a single XML fragment, which replaces the element with the
// same tag (or is appended inside the root element when absent), or
// field/value pairs, each replacing the text of element <field> or the
// value of attribute field on the root element.
func UpdateDocument(doc string, args []string) (string, error) {
	if len(args) == 1 && strings.HasPrefix(strings.TrimSpace(args[0]), "<") {
		return replaceFragment(doc, strings.TrimSpace(args[0]))
	}
	if len(args) == 0 || len(args)%2 != 0 {
		return "", fmt.Errorf("update needs field/value pairs, got %d values", len(args))
	}

	for i := 0; i < len(args); i += 2 {
		field, value := strings.TrimSpace(args[i]), args[i+1]
		updated, ok := replaceElementText(doc, field, value)
		if !ok {
			updated, ok = replaceRootAttribute(doc, field, value)
		}
		if !ok {
			return "", fmt.Errorf("field %q not found in asset", field)
		}
		doc = updated
	}
	return doc, nil
}

func replaceElementText(doc, field, value string) (string, bool) {
	q := regexp.QuoteMeta(field)
	re := regexp.MustCompile(`(?s)(<` + q + `(?:\s[^>]*)?>)(.*?)(</` + q + `>)`)
	loc := re.FindStringSubmatchIndex(doc)
	if loc == nil {
		return doc, false
	}
	return doc[:loc[3]] + value + doc[loc[6]:], true
}

func replaceRootAttribute(doc, field, value string) (string, bool) {
	root := regexp.MustCompile(`^\s*<[^>]*>`).FindStringIndex(doc)
	if root == nil {
		return doc, false
	}
	head := doc[root[0]:root[1]]
	re := regexp.MustCompile(`(\s` + regexp.QuoteMeta(field) + `\s*=\s*)("[^"]*"|'[^']*')`)
	loc := re.FindStringSubmatchIndex(head)
	if loc == nil {
		return doc, false
	}
	head = head[:loc[4]] + `"` + value + `"` + head[loc[5]:]
	return doc[:root[0]] + head + doc[root[1]:], true
}

func replaceFragment(doc, fragment string) (string, error) {
	m := fragmentTag.FindStringSubmatch(fragment)
	if m == nil {
		return "", fmt.Errorf("fragment has no element")
	}
	q := regexp.QuoteMeta(m[1])
	re := regexp.MustCompile(`(?s)<` + q + `(?:\s[^>]*)?(?:/>|>.*?</` + q + `>)`)
	if loc := re.FindStringIndex(doc); loc != nil {
		return doc[:loc[0]] + fragment + doc[loc[1]:], nil
	}

	closing := strings.LastIndex(doc, "</")
	if closing < 0 {
		return "", fmt.Errorf("asset document has no root element to append %s to", m[1])
	}
	return doc[:closing] + fragment + doc[closing:], nil
}
