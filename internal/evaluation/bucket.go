package evaluation

// BucketValues salts and hashes value and splits the hash into the
// allocation value (0-99) and the distribution value.
func BucketValues(salt, value string) (allocation, distribution int64) {
	hash := int64(Hash32(salt + "/" + value))
	return hash % 100, hash / 100
}

// Bucket resolves the variant key a matched segment assigns to target.
//
// Without a bucket, or when the bucketing value is absent or empty, the
// segment's default variant is returned. Otherwise allocations and then
// distributions are scanned in declaration order and the first range that
// contains the value wins.
func (e *Engine) Bucket(target Selectable, seg Segment) string {
	if seg.Bucket == nil {
		return seg.Variant
	}

	selected, ok := Select(target, seg.Bucket.Selector)
	if !ok {
		return seg.Variant
	}
	value := selected.String()
	if value == "" {
		return seg.Variant
	}

	allocationValue, distributionValue := BucketValues(seg.Bucket.Salt, value)

	for _, alloc := range seg.Bucket.Allocations {
		if !alloc.Range.Contains(allocationValue) {
			continue
		}
		for _, dist := range alloc.Distributions {
			if dist.Range.Contains(distributionValue) {
				return dist.Variant
			}
		}
	}

	return seg.Variant
}
