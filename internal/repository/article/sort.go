package article

import (
	"sort"

	domarticle "github.com/freethrow/tanalyst/internal/domain/article"
)

// sortNewestFirst orders by article date, then scrape time, descending.
// Undated articles sink to the end in their original order.
func sortNewestFirst(as []domarticle.Article) {
	sort.SliceStable(as, func(i, j int) bool {
		ti, tj := as[i].ArticleDate, as[j].ArticleDate
		if ti.IsZero() {
			ti = as[i].ScrapedAt
		}
		if tj.IsZero() {
			tj = as[j].ScrapedAt
		}
		return ti.After(tj)
	})
}
