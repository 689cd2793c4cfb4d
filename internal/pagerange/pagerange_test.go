package pagerange

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		expr  string
		total int
		want  [][]int
	}{
		{"1-3", 10, [][]int{{0, 1, 2}}},
		{"6", 10, [][]int{{5}}},
		{"-2", 5, [][]int{{0, 1}}},
		{"4-", 5, [][]int{{3, 4}}},
		{"1,3,5;2-3", 5, [][]int{{0, 2, 4}, {1, 2}}},
		{"20", 10, [][]int{{9}}},
		{"0", 10, [][]int{{0}}},
		{"-", 3, [][]int{{0, 1, 2}}},
		{" 1 - 2 ;; 3 ; ", 5, [][]int{{0, 1}, {2}}},
		{"8-30", 10, [][]int{{7, 8, 9}}},
		{"5,1,5,3", 5, [][]int{{4, 0, 2}}},
		{"9,12,10", 10, [][]int{{8, 9, 9}}},
		{"0,1", 5, [][]int{{0, 0}}},
		{"99999999999999999999", 10, [][]int{{9}}},
		{"1-99999999999999999999", 3, [][]int{{0, 1, 2}}},
		{"2,99999999999999999999,-99999999999999999999", 4, [][]int{{1, 3, 0}}},
		{"1,,2,", 4, [][]int{{0, 1}}},
		{"2;2;1-2", 3, [][]int{{1}, {1}, {0, 1}}},
		{"3,1", 3, [][]int{{2, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Parse(tt.expr, tt.total)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse(%q, %d) mismatch (-want +got):\n%s", tt.expr, tt.total, diff)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		expr  string
		total int
		want  error
		msg   string
	}{
		{"", 10, ErrEmptyExpression, "please enter ranges, e.g. 1-2; 3-5; 6"},
		{"   ", 10, ErrEmptyExpression, ""},
		{";;", 10, ErrNoValidGroups, "invalid ranges"},
		{" ; ; ", 10, ErrNoValidGroups, ""},
		{"abc", 10, ErrInvalidPageToken, "invalid page: abc"},
		{"1,x,3", 10, ErrInvalidPageToken, "invalid page list: 1,x,3"},
		{",", 10, ErrInvalidPageToken, ""},
		{"1.5", 10, ErrInvalidPageToken, ""},
		{"a-3", 10, ErrInvalidRangeToken, "invalid range: a-3"},
		{"1-2-3", 10, ErrInvalidRangeToken, ""},
		{"5-2", 10, ErrRangeStartAfterEnd, "range start > end: 5-2"},
		{"1-2; 9-3", 10, ErrRangeStartAfterEnd, ""},
		{"1", 0, ErrInvalidPageCount, ""},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Parse(tt.expr, tt.total)
			assert.Nil(t, got)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v, want kind %v", err, tt.want.(*Error).Kind)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, err.Error())
			}
			var pe *Error
			require.True(t, errors.As(err, &pe))
		})
	}
}

func TestErrorIsDistinguishesKinds(t *testing.T) {
	_, err := Parse("5-2", 10)
	assert.ErrorIs(t, err, ErrRangeStartAfterEnd)
	assert.NotErrorIs(t, err, ErrInvalidRangeToken)
	assert.Equal(t, "RangeStartAfterEnd", RangeStartAfterEnd.String())
}

func TestEachAndAll(t *testing.T) {
	if diff := cmp.Diff([][]int{{0}, {1}, {2}}, Each(3)); diff != "" {
		t.Errorf("Each(3) mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, Each(0))
	assert.Equal(t, []int{0, 1, 2, 3}, All(4))
	assert.Empty(t, All(-1))
}

func TestNames(t *testing.T) {
	assert.Equal(t, "report", StripExt("report.pdf"))
	assert.Equal(t, "scan.v2", StripExt("scan.v2.pdf"))
	assert.Equal(t, "noext", StripExt("noext"))
	assert.Equal(t, "report-part01.pdf", PartName("report", 0))
	assert.Equal(t, "report-part12.pdf", PartName("report", 11))
	assert.Equal(t, "report-p007.jpg", PageName("report", 7, "jpg"))
}
