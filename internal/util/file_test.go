package util

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	cases := []struct {
		name   string
		header string
		size   int64
		want   *ByteRange
		err    error
	}{
		{name: "empty", header: "", size: 1000},
		{name: "closed", header: "bytes=100-199", size: 1000, want: &ByteRange{Start: 100, End: 199}},
		{name: "open end", header: "bytes=900-", size: 1000, want: &ByteRange{Start: 900, End: 999}},
		{name: "end clamped", header: "bytes=900-5000", size: 1000, want: &ByteRange{Start: 900, End: 999}},
		{name: "suffix", header: "bytes=-100", size: 1000, want: &ByteRange{Start: 900, End: 999}},
		{name: "suffix larger than file", header: "bytes=-5000", size: 1000, want: &ByteRange{Start: 0, End: 999}},
		{name: "start beyond size", header: "bytes=1000-1100", size: 1000, err: ErrRangeNotSatisfiable},
		{name: "start after end", header: "bytes=200-100", size: 1000, err: ErrRangeNotSatisfiable},
		{name: "wrong unit", header: "items=0-1", size: 1000, err: ErrValidation},
		{name: "multi range", header: "bytes=0-1,5-6", size: 1000, err: ErrValidation},
		{name: "garbage", header: "bytes=abc-def", size: 1000, err: ErrValidation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseRange(tc.header, tc.size)
			if tc.err != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tc.err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestByteRangeHeaders(t *testing.T) {
	r := ByteRange{Start: 100, End: 199}
	assert.Equal(t, int64(100), r.Length())
	assert.Equal(t, "bytes 100-199/1000", r.ContentRange(1000))
	assert.Equal(t, "bytes */1000", UnsatisfiedRange(1000))
}

func TestSafeFilename(t *testing.T) {
	assert.Equal(t, "notes.pdf", SafeFilename("../../etc/notes.pdf"))
	assert.Equal(t, "notes.pdf", SafeFilename(`..\..\notes.pdf`))
	assert.Equal(t, "", SafeFilename(".."))
	assert.Equal(t, "", SafeFilename(""))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 50.0, Percent(2, 4))
	assert.Equal(t, 33.33, Percent(1, 3))
	assert.Equal(t, 66.67, Percent(2, 3))
	assert.Equal(t, 0.0, Percent(1, 0))
}
