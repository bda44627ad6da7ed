package internaldefs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCumulativeBuckets(t *testing.T) {
	raw := NormalizeBuckets([]uint64{1, 2, 3})
	require.Equal(t, [BucketCount]uint64{1, 2, 3, 0, 0, 0, 0, 0}, raw)

	cum := CumulativeBuckets([BucketCount]uint64{1, 1, 1, 1, 1, 1, 1, 1})
	require.Equal(t, [BucketCount]uint64{1, 2, 3, 4, 5, 6, 7, 8}, cum)
}

func TestNormalizeBucketsTruncates(t *testing.T) {
	raw := NormalizeBuckets([]uint64{1, 1, 1, 1, 1, 1, 1, 1, 9, 9})
	require.Equal(t, uint64(1), raw[BucketCount-1])
}

func TestNamesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, def := range CounterDefs {
		require.True(t, strings.HasPrefix(def.Name, "campus_"), def.Name)
		require.True(t, strings.HasSuffix(def.Name, "_total"), def.Name)
		require.False(t, seen[def.Name], "duplicate %s", def.Name)
		seen[def.Name] = true
	}
	for _, def := range HistogramDefs {
		require.False(t, seen[def.Name], "duplicate %s", def.Name)
		seen[def.Name] = true
	}
}
