package render

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MarkerPrefix returns the leading portion of the marker shared by every
// page of a report of the given kind. The publisher matches comments by
// this prefix.
func MarkerPrefix(kind string) string {
	return fmt.Sprintf(`<!-- sizedeltas-report kind=%q`, kind)
}

// marker returns the full marker for one page.
func marker(kind string, page, pages int) string {
	return fmt.Sprintf(`%s page="%d/%d" -->`, MarkerPrefix(kind), page, pages)
}

var markerPageRe = regexp.MustCompile(`page="(\d+)/(\d+)"`)

// PageOf extracts the page index from a marked comment body. The second
// return is false when the body carries no marker for the given kind.
func PageOf(body, kind string) (int, bool) {
	i := strings.Index(body, MarkerPrefix(kind))
	if i < 0 {
		return 0, false
	}
	rest := body[i:]
	if end := strings.Index(rest, "-->"); end >= 0 {
		rest = rest[:end]
	}
	m := markerPageRe.FindStringSubmatch(rest)
	if m == nil {
		return 0, false
	}
	page, err := strconv.Atoi(m[1])
	if err != nil || page < 1 {
		return 0, false
	}
	return page, true
}
