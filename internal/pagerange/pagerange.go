// Package pagerange parses page selections such as "1-3; 4-; 2,5,7" into
// groups of 0-based page indexes. Each group describes one output document.
package pagerange

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

// Kind classifies a parse failure.
type Kind int

const (
	EmptyExpression Kind = iota + 1
	NoValidGroups
	InvalidPageToken
	InvalidRangeToken
	RangeStartAfterEnd
	InvalidPageCount
)

func (k Kind) String() string {
	switch k {
	case EmptyExpression:
		return "EmptyExpression"
	case NoValidGroups:
		return "NoValidGroups"
	case InvalidPageToken:
		return "InvalidPageToken"
	case InvalidRangeToken:
		return "InvalidRangeToken"
	case RangeStartAfterEnd:
		return "RangeStartAfterEnd"
	case InvalidPageCount:
		return "InvalidPageCount"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is returned for every malformed expression. Group holds the
// offending group text when one is known.
type Error struct {
	Kind  Kind
	Group string
}

func (e *Error) Error() string {
	switch e.Kind {
	case EmptyExpression:
		return "please enter ranges, e.g. 1-2; 3-5; 6"
	case NoValidGroups:
		return "invalid ranges"
	case InvalidPageToken:
		if strings.Contains(e.Group, ",") {
			return fmt.Sprintf("invalid page list: %s", e.Group)
		}
		return fmt.Sprintf("invalid page: %s", e.Group)
	case InvalidRangeToken:
		return fmt.Sprintf("invalid range: %s", e.Group)
	case RangeStartAfterEnd:
		return fmt.Sprintf("range start > end: %s", e.Group)
	case InvalidPageCount:
		return fmt.Sprintf("document has no pages (%s)", e.Group)
	}
	return "invalid page selection"
}

// Is matches any *Error of the same Kind, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrEmptyExpression    = &Error{Kind: EmptyExpression}
	ErrNoValidGroups      = &Error{Kind: NoValidGroups}
	ErrInvalidPageToken   = &Error{Kind: InvalidPageToken}
	ErrInvalidRangeToken  = &Error{Kind: InvalidRangeToken}
	ErrRangeStartAfterEnd = &Error{Kind: RangeStartAfterEnd}
	ErrInvalidPageCount   = &Error{Kind: InvalidPageCount}
)

// Parse resolves expr against a document of totalPages pages.
//
// Groups are separated by ';'. A group is either a comma list ("1,3,5"), a
// dash range ("a-b", "a-", "-b") or a single page. Page numbers are 1-based
// in the input, clamped into [1, totalPages], and returned 0-based.
func Parse(expr string, totalPages int) ([][]int, error) {
	raw := strings.TrimSpace(expr)
	if raw == "" {
		return nil, &Error{Kind: EmptyExpression}
	}
	if totalPages < 1 {
		return nil, &Error{Kind: InvalidPageCount, Group: strconv.Itoa(totalPages)}
	}

	var groups []string
	for _, g := range strings.Split(raw, ";") {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	if len(groups) == 0 {
		return nil, &Error{Kind: NoValidGroups}
	}

	out := make([][]int, 0, len(groups))
	for _, g := range groups {
		pages, err := resolveGroup(g, totalPages)
		if err != nil {
			return nil, err
		}
		idx := make([]int, len(pages))
		for i, n := range pages {
			idx[i] = n - 1
		}
		out = append(out, idx)
	}
	return out, nil
}

// Each returns one single-page group per page.
func Each(totalPages int) [][]int {
	out := make([][]int, 0, max(totalPages, 0))
	for i := 0; i < totalPages; i++ {
		out = append(out, []int{i})
	}
	return out
}

// All returns a single group holding every page in order.
func All(totalPages int) []int {
	out := make([]int, 0, max(totalPages, 0))
	for i := 0; i < totalPages; i++ {
		out = append(out, i)
	}
	return out
}

func resolveGroup(g string, total int) ([]int, error) {
	switch {
	case strings.Contains(g, ","):
		return resolveList(g, total)
	case strings.Contains(g, "-"):
		return resolveRange(g, total)
	default:
		n, err := atoi(g)
		if err != nil {
			return nil, &Error{Kind: InvalidPageToken, Group: g}
		}
		return []int{clamp(n, total)}, nil
	}
}

// resolveList drops repeated tokens, keeping first-seen order, then clamps.
// Distinct tokens that clamp to the same page stay repeated.
func resolveList(g string, total int) ([]int, error) {
	seen := make(map[int]struct{})
	var pages []int
	for _, tok := range strings.Split(g, ",") {
		if strings.TrimSpace(tok) == "" {
			continue
		}
		n, err := atoi(tok)
		if err != nil {
			return nil, &Error{Kind: InvalidPageToken, Group: g}
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		pages = append(pages, clamp(n, total))
	}
	if len(pages) == 0 {
		return nil, &Error{Kind: InvalidPageToken, Group: g}
	}
	return pages, nil
}

func resolveRange(g string, total int) ([]int, error) {
	left, right, _ := strings.Cut(g, "-")
	left, right = strings.TrimSpace(left), strings.TrimSpace(right)

	start, end := 1, total
	var err error
	if left != "" {
		if start, err = atoi(left); err != nil {
			return nil, &Error{Kind: InvalidRangeToken, Group: g}
		}
	}
	if right != "" {
		if end, err = atoi(right); err != nil {
			return nil, &Error{Kind: InvalidRangeToken, Group: g}
		}
	}
	start, end = clamp(start, total), clamp(end, total)
	if start > end {
		return nil, &Error{Kind: RangeStartAfterEnd, Group: g}
	}
	pages := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		pages = append(pages, i)
	}
	return pages, nil
}

// atoi parses a base-10 integer. Values beyond the int range saturate so
// that clamp maps them onto the first or last page.
func atoi(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if errors.Is(err, strconv.ErrRange) {
		if strings.HasPrefix(strings.TrimSpace(s), "-") {
			return math.MinInt, nil
		}
		return math.MaxInt, nil
	}
	return n, err
}

func clamp(n, total int) int {
	if n < 1 {
		return 1
	}
	if n > total {
		return total
	}
	return n
}

// StripExt drops the final extension of a file name.
func StripExt(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// PartName names the file for the i-th (0-based) group: "base-part01.pdf".
func PartName(base string, i int) string {
	return fmt.Sprintf("%s-part%02d.pdf", base, i+1)
}

// PageName names the file for a 1-based page: "base-p001.ext".
func PageName(base string, page int, ext string) string {
	return fmt.Sprintf("%s-p%03d.%s", base, page, ext)
}
