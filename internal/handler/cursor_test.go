package handler

import (
	"errors"
	"testing"

	"github.com/kursadbilgin/exception-collector/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	t.Parallel()

	for _, offset := range []int{0, 1, 49, 100, 99999} {
		token := encodeCursor(offset)
		got, err := decodeCursor(token)
		if err != nil {
			t.Fatalf("decodeCursor(%q) error = %v", token, err)
		}
		if got != offset {
			t.Fatalf("decodeCursor(encodeCursor(%d)) = %d", offset, got)
		}
	}
}

func TestCursorDecodeRejectsMalformed(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		token string
	}{
		{name: "not base64", token: "!!not-base64!!"},
		{name: "wrong prefix", token: "b3RoZXI6NQ"},
		{name: "missing offset", token: "eGMx"},
		{name: "negative offset", token: "eGMxOi01"},
		{name: "non-numeric offset", token: "eGMxOmFiYw"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if _, err := decodeCursor(tc.token); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("decodeCursor(%q) error = %v, want ErrValidation", tc.token, err)
			}
		})
	}
}

func TestParsePageRequestValidation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		first   string
		after   string
		last    string
		before  string
		wantErr bool
	}{
		{name: "defaults", wantErr: false},
		{name: "first only", first: "10"},
		{name: "last only", last: "10"},
		{name: "first with after", first: "10", after: encodeCursor(5)},
		{name: "last with before", last: "10", before: encodeCursor(50)},
		{name: "first and last rejected", first: "10", last: "10", wantErr: true},
		{name: "after and before rejected", after: encodeCursor(1), before: encodeCursor(9), wantErr: true},
		{name: "first with before rejected", first: "10", before: encodeCursor(9), wantErr: true},
		{name: "last with after rejected", last: "10", after: encodeCursor(1), wantErr: true},
		{name: "zero first rejected", first: "0", wantErr: true},
		{name: "negative last rejected", last: "-3", wantErr: true},
		{name: "oversized first rejected", first: "101", wantErr: true},
		{name: "max first accepted", first: "100"},
		{name: "garbage cursor rejected", first: "10", after: "zzz!", wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := parsePageRequest(tc.first, tc.after, tc.last, tc.before)
			if tc.wantErr && !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("parsePageRequest() error = %v, want ErrValidation", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("parsePageRequest() unexpected error: %v", err)
			}
		})
	}
}

func TestPageRequestWindow(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		page       pageRequest
		total      int64
		wantOffset int
		wantLimit  int
	}{
		{name: "forward first page", page: pageRequest{Size: 10, After: -1, Before: -1}, wantOffset: 0, wantLimit: 10},
		{name: "forward after cursor", page: pageRequest{Size: 10, After: 24, Before: -1}, wantOffset: 25, wantLimit: 10},
		{name: "backward before cursor", page: pageRequest{Size: 10, After: -1, Before: 30, Backward: true}, wantOffset: 20, wantLimit: 10},
		{name: "backward before cursor clamped to known total", page: pageRequest{Size: 10, After: -1, Before: 50, Backward: true}, total: 35, wantOffset: 25, wantLimit: 10},
		{name: "backward clamped at start", page: pageRequest{Size: 10, After: -1, Before: 4, Backward: true}, wantOffset: 0, wantLimit: 4},
		{name: "backward last page from total", page: pageRequest{Size: 10, After: -1, Before: -1, Backward: true}, total: 35, wantOffset: 25, wantLimit: 10},
		{name: "backward small total", page: pageRequest{Size: 10, After: -1, Before: -1, Backward: true}, total: 3, wantOffset: 0, wantLimit: 3},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			offset, limit := tc.page.window(tc.total)
			if offset != tc.wantOffset || limit != tc.wantLimit {
				t.Fatalf("window() = (%d, %d), want (%d, %d)", offset, limit, tc.wantOffset, tc.wantLimit)
			}
		})
	}
}
