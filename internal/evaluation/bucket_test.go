package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func bucketSegment(allocs ...Allocation) Segment {
	return Segment{
		Bucket: &Bucket{
			Selector:    []string{"context", "device_id"},
			Salt:        "s",
			Allocations: allocs,
		},
		Variant: "default",
	}
}

func TestEngine_Bucket_Boundaries(t *testing.T) {
	t.Parallel()

	// "s/u1" hashes to allocation value 79 and distribution value 38225148.
	const alloc, dist = int64(79), int64(38225148)
	target := Target{Context: NewContext(map[string]any{"device_id": "u1"}), Result: Results{}}

	tests := []struct {
		name string
		seg  Segment
		want string
	}{
		{
			name: "Should include the allocation start",
			seg:  bucketSegment(Allocation{Range: Range{alloc, alloc + 1}, Distributions: []Distribution{{Variant: "on", Range: Range{0, MaxDistributionValue}}}}),
			want: "on",
		},
		{
			name: "Should exclude the allocation end",
			seg:  bucketSegment(Allocation{Range: Range{0, alloc}, Distributions: []Distribution{{Variant: "on", Range: Range{0, MaxDistributionValue}}}}),
			want: "default",
		},
		{
			name: "Should include the distribution start",
			seg:  bucketSegment(Allocation{Range: Range{0, 100}, Distributions: []Distribution{{Variant: "on", Range: Range{dist, dist + 1}}}}),
			want: "on",
		},
		{
			name: "Should exclude the distribution end",
			seg:  bucketSegment(Allocation{Range: Range{0, 100}, Distributions: []Distribution{{Variant: "on", Range: Range{0, dist}}}}),
			want: "default",
		},
		{
			name: "Should pick the first matching distribution",
			seg: bucketSegment(Allocation{Range: Range{0, 100}, Distributions: []Distribution{
				{Variant: "first", Range: Range{0, MaxDistributionValue}},
				{Variant: "second", Range: Range{0, MaxDistributionValue}},
			}}),
			want: "first",
		},
		{
			name: "Should only scan distributions of the first matching allocation",
			seg: bucketSegment(
				Allocation{Range: Range{0, 100}, Distributions: []Distribution{{Variant: "miss", Range: Range{0, 1}}}},
				Allocation{Range: Range{0, 100}, Distributions: []Distribution{{Variant: "hit", Range: Range{0, MaxDistributionValue}}}},
			),
			want: "hit",
		},
		{
			name: "Should fall back to the default variant without allocations",
			seg:  bucketSegment(),
			want: "default",
		},
		{
			name: "Should return the default variant without a bucket",
			seg:  Segment{Variant: "default"},
			want: "default",
		},
	}

	engine, _ := newTestEngine(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, engine.Bucket(target, tt.seg))
		})
	}
}

func TestEngine_Bucket_MissingValue(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t)
	seg := bucketSegment(Allocation{Range: Range{0, 100}, Distributions: []Distribution{{Variant: "on", Range: Range{0, MaxDistributionValue}}}})

	absent := Target{Context: Context{}, Result: Results{}}
	empty := Target{Context: NewContext(map[string]any{"device_id": ""}), Result: Results{}}

	assert.Equal(t, "default", engine.Bucket(absent, seg))
	assert.Equal(t, "default", engine.Bucket(empty, seg))
}

func TestEngine_Bucket_Distribution(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t)
	half := int64(MaxDistributionValue / 2)
	seg := bucketSegment(Allocation{Range: Range{0, 100}, Distributions: []Distribution{
		{Variant: "control", Range: Range{0, half}},
		{Variant: "treatment", Range: Range{half, MaxDistributionValue}},
	}})

	iterations := 10000
	counts := map[string]int{}
	for i := range iterations {
		target := Target{Context: NewContext(map[string]any{"device_id": generateID(i)}), Result: Results{}}
		counts[engine.Bucket(target, seg)]++
	}

	assert.Zero(t, counts["default"])
	assert.InDelta(t, iterations/2, counts["control"], float64(iterations)*0.05)
	assert.InDelta(t, iterations/2, counts["treatment"], float64(iterations)*0.05)
}

func TestEngine_Bucket_Stable(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t)
	seg := bucketSegment(Allocation{Range: Range{0, 50}, Distributions: []Distribution{{Variant: "on", Range: Range{0, MaxDistributionValue}}}})

	for i := range 100 {
		target := Target{Context: NewContext(map[string]any{"device_id": generateID(i)}), Result: Results{}}
		first := engine.Bucket(target, seg)
		for range 3 {
			assert.Equal(t, first, engine.Bucket(target, seg))
		}
	}
}
