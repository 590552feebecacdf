package record

// UnionTags returns the set union of the given tag lists.
// The result keeps first-seen order and contains no duplicates.
// Returns nil when there are no tags at all.
func UnionTags(lists ...[]string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, tag := range list {
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	return out
}

// NormalizeTags deduplicates tags in place order.
func NormalizeTags(tags []string) []string {
	return UnionTags(tags)
}
