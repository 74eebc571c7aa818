package handler

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/kursadbilgin/exception-collector/internal/domain"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100

	cursorPrefix = "xc1"
)

// encodeCursor wraps an absolute position in the sorted result set into an
// opaque token. Clients must treat it as a black box.
func encodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf("%s:%d", cursorPrefix, offset)))
}

func decodeCursor(token string) (int, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return 0, fmt.Errorf("%w: malformed cursor", domain.ErrValidation)
	}

	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 || parts[0] != cursorPrefix {
		return 0, fmt.Errorf("%w: malformed cursor", domain.ErrValidation)
	}

	offset, err := strconv.Atoi(parts[1])
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("%w: malformed cursor", domain.ErrValidation)
	}
	return offset, nil
}

// pageRequest is the resolved pagination window. Backward pages still map to
// an offset window over the same stable sort order.
type pageRequest struct {
	Size     int
	Backward bool
	// After/Before hold the decoded anchor position, -1 when absent.
	After  int
	Before int
}

// parsePageRequest validates the four cursor parameters: exactly one
// direction may be used, and page sizes are bounded.
func parsePageRequest(first, after, last, before string) (pageRequest, error) {
	hasFirst := strings.TrimSpace(first) != ""
	hasLast := strings.TrimSpace(last) != ""
	hasAfter := strings.TrimSpace(after) != ""
	hasBefore := strings.TrimSpace(before) != ""

	if hasFirst && hasLast {
		return pageRequest{}, fmt.Errorf("%w: first and last cannot be combined", domain.ErrValidation)
	}
	if hasAfter && hasBefore {
		return pageRequest{}, fmt.Errorf("%w: after and before cannot be combined", domain.ErrValidation)
	}
	if hasFirst && hasBefore {
		return pageRequest{}, fmt.Errorf("%w: first cannot be combined with before", domain.ErrValidation)
	}
	if hasLast && hasAfter {
		return pageRequest{}, fmt.Errorf("%w: last cannot be combined with after", domain.ErrValidation)
	}

	req := pageRequest{Size: defaultPageSize, After: -1, Before: -1, Backward: hasLast || hasBefore}

	if hasFirst {
		size, err := parsePageSize(first, "first")
		if err != nil {
			return pageRequest{}, err
		}
		req.Size = size
	}
	if hasLast {
		size, err := parsePageSize(last, "last")
		if err != nil {
			return pageRequest{}, err
		}
		req.Size = size
	}

	if hasAfter {
		pos, err := decodeCursor(after)
		if err != nil {
			return pageRequest{}, err
		}
		req.After = pos
	}
	if hasBefore {
		pos, err := decodeCursor(before)
		if err != nil {
			return pageRequest{}, err
		}
		req.Before = pos
	}

	return req, nil
}

func parsePageSize(raw, field string) (int, error) {
	size, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrValidation, field)
	}
	if size < 1 {
		return 0, fmt.Errorf("%w: %s must be positive", domain.ErrValidation, field)
	}
	if size > maxPageSize {
		return 0, fmt.Errorf("%w: %s must not exceed %d", domain.ErrValidation, field, maxPageSize)
	}
	return size, nil
}

// window translates the page request into an offset/limit pair. An anchored
// backward page ends at the cursor position; only anchorless backward pages
// need the total row count to locate their end.
func (p pageRequest) window(total int64) (offset, limit int) {
	if !p.Backward {
		offset = 0
		if p.After >= 0 {
			offset = p.After + 1
		}
		return offset, p.Size
	}

	end := int(total)
	if p.Before >= 0 {
		end = p.Before
		if total > 0 && end > int(total) {
			end = int(total)
		}
	}
	offset = end - p.Size
	if offset < 0 {
		offset = 0
	}
	limit = end - offset
	if limit < 0 {
		limit = 0
	}
	return offset, limit
}
