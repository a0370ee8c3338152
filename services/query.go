package services

import (
	"fmt"
	"strings"

	"alertreport/models"
)

// BuildQuery renders the alert search predicate for a window and tag set:
//
//	createdAt>= <ms> AND createdAt<= <ms> AND tag: <t1> AND tag: <t2> ...
func BuildQuery(w models.TimeWindow, tags []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "createdAt>= %d AND createdAt<= %d", w.StartMillis(), w.EndMillis())
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		fmt.Fprintf(&b, " AND tag: %s", tag)
	}
	return b.String()
}
