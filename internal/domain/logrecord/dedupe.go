package logrecord

import (
	"sort"
	"unicode/utf8"
)

// Dedupe keeps one record per identity: the one with the longest body, the
// earliest on ties. Survivors keep their original relative order.
func Dedupe(records []Record) []Record {
	best := make(map[string]int, len(records))
	for i := range records {
		j, seen := best[records[i].id]
		if !seen || bodyLen(&records[i]) > bodyLen(&records[j]) {
			best[records[i].id] = i
		}
	}

	keep := make([]int, 0, len(best))
	for _, i := range best {
		keep = append(keep, i)
	}
	sort.Ints(keep)

	out := make([]Record, len(keep))
	for n, i := range keep {
		out[n] = records[i]
	}
	return out
}

func bodyLen(r *Record) int {
	n := utf8.RuneCountInString(r.text)
	if n > MaxBodyLength {
		return MaxBodyLength
	}
	return n
}
