package services

import (
	"slices"

	"feedsync/feed"
)

// Duplicate is a reference number that occurs more than once in one pull.
// Permits lists the distinct permit numbers seen with it; a single permit
// means the entries are the same listing repeated.
type Duplicate struct {
	ReferenceNumber string   `json:"reference_number"`
	Permits         []string `json:"permits"`
	Count           int      `json:"count"`
}

func (d Duplicate) SamePermit() bool {
	return len(d.Permits) == 1
}

// DetectDuplicates reports repeated reference numbers in feed order.
func DetectDuplicates(records []feed.Normalized) []Duplicate {
	counts := make(map[string]int)
	permits := make(map[string][]string)
	var order []string

	for _, rec := range records {
		ref := rec.Reference()
		if ref == "" {
			continue
		}
		if counts[ref] == 0 {
			order = append(order, ref)
		}
		counts[ref]++

		permit := rec.Get(feed.FieldPermitNumber)
		if !slices.Contains(permits[ref], permit) {
			permits[ref] = append(permits[ref], permit)
		}
	}

	var dups []Duplicate
	for _, ref := range order {
		if counts[ref] > 1 {
			dups = append(dups, Duplicate{ReferenceNumber: ref, Permits: permits[ref], Count: counts[ref]})
		}
	}
	return dups
}
