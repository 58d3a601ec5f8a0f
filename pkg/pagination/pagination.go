// Package pagination turns before_id/after_id/page_size query parameters
// into a cursor-bounded page descriptor.
//
// Lists are ordered by id descending. after_id selects ids greater than
// the cursor (newer items), before_id selects ids lower than the cursor
// (older items). When both are supplied after_id wins.
package pagination

import (
	"net/url"
	"strconv"
	"strings"

	"polygram/internal/util"
	"polygram/pkg/apperr"
)

// Bounds describes the accepted page_size range of one list.
type Bounds struct {
	Default int
	Min     int
	Max     int
}

var (
	Questions     = Bounds{Default: 10, Min: 5, Max: 50}
	Opinions      = Bounds{Default: 5, Min: 5, Max: 50}
	Notifications = Bounds{Default: 5, Min: 1, Max: 50}
	Topics        = Bounds{Default: 5, Min: 1, Max: 50}
)

// Op is the comparison applied to the id column.
type Op string

const (
	OpNone    Op = ""
	OpGreater Op = ">"
	OpLess    Op = "<"
)

// Page is a pure query descriptor.
type Page struct {
	Size   int
	Op     Op
	Cursor string
}

// FromQuery reads before_id, after_id and page_size from values.
func FromQuery(values url.Values, b Bounds) (Page, error) {
	size := 0
	if raw := strings.TrimSpace(values.Get("page_size")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Page{}, apperr.InvalidArg("page_size must be of type number")
		}
		size = n
	} else {
		size = b.Default
	}
	return New(values.Get("after_id"), values.Get("before_id"), size, b)
}

// New validates the cursor pair and size against b.
func New(afterID, beforeID string, size int, b Bounds) (Page, error) {
	if size < b.Min || size > b.Max {
		return Page{}, apperr.InvalidArgf("page_size must be between %d and %d", b.Min, b.Max)
	}
	afterID = strings.TrimSpace(afterID)
	beforeID = strings.TrimSpace(beforeID)
	if afterID != "" && !util.IsID(afterID) {
		return Page{}, apperr.InvalidArg("Invalid after_id")
	}
	if beforeID != "" && !util.IsID(beforeID) {
		return Page{}, apperr.InvalidArg("Invalid before_id")
	}
	p := Page{Size: size}
	switch {
	case afterID != "":
		p.Op, p.Cursor = OpGreater, strings.ToLower(afterID)
	case beforeID != "":
		p.Op, p.Cursor = OpLess, strings.ToLower(beforeID)
	}
	return p, nil
}

// First returns an unbounded page of the default size.
func First(b Bounds) Page {
	return Page{Size: b.Default}
}

// Admits reports whether id falls inside the cursor bound.
func (p Page) Admits(id string) bool {
	switch p.Op {
	case OpGreater:
		return id > p.Cursor
	case OpLess:
		return id < p.Cursor
	default:
		return true
	}
}

// Where returns the SQL predicate for column, or "" when unbounded.
func (p Page) Where(column string) (string, []any) {
	if p.Op == OpNone {
		return "", nil
	}
	return column + " " + string(p.Op) + " ?", []any{p.Cursor}
}
