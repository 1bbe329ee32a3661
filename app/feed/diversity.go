package feed

import (
	"math"

	"github.com/lysyi3m/feed-cascade/app/content"
)

// Diversify caps how many items any single author contributes to a feed of
// targetSize. Items are walked in the given order; an author keeps being
// admitted until it reaches floor(targetSize*capFraction) items. Skipped
// items are held back and only used to top the feed up when the first pass
// falls short of targetSize, and even then never beyond
// ceil(targetSize*capFraction) items per author.
//
// A capFraction outside (0, 1) disables the cap. The input is not modified.
func Diversify(items []content.ContentItem, capFraction float64, targetSize int, following []string) ([]content.ContentItem, content.DiversityMetrics) {
	softCap, hardCap := authorCaps(capFraction, targetSize)

	perAuthor := make(map[string]int)
	admitted := make([]content.ContentItem, 0, min(len(items), max(targetSize, 0)))
	var overflow []content.ContentItem

	for _, item := range items {
		if len(admitted) >= targetSize {
			break
		}
		if perAuthor[item.AuthorID] >= softCap {
			overflow = append(overflow, item)
			continue
		}
		perAuthor[item.AuthorID]++
		admitted = append(admitted, item)
	}

	for _, item := range overflow {
		if len(admitted) >= targetSize {
			break
		}
		if perAuthor[item.AuthorID] >= hardCap {
			continue
		}
		perAuthor[item.AuthorID]++
		admitted = append(admitted, item)
	}

	return admitted, measure(items, admitted, following)
}

func authorCaps(capFraction float64, targetSize int) (int, int) {
	if capFraction <= 0 || capFraction >= 1 || targetSize <= 0 {
		return math.MaxInt, math.MaxInt
	}
	share := float64(targetSize) * capFraction
	soft := max(int(math.Floor(share)), 1)
	hard := max(int(math.Ceil(share)), soft)
	return soft, hard
}

func measure(considered, admitted []content.ContentItem, following []string) content.DiversityMetrics {
	authors := make(map[string]struct{})
	for _, item := range considered {
		authors[item.AuthorID] = struct{}{}
	}

	followed := make(map[string]struct{}, len(following))
	for _, id := range following {
		followed[content.NormalizeID(id)] = struct{}{}
	}

	perAuthor := make(map[string]int)
	represented := make(map[string]struct{})
	maxPosts := 0
	for _, item := range admitted {
		perAuthor[item.AuthorID]++
		maxPosts = max(maxPosts, perAuthor[item.AuthorID])
		if _, ok := followed[item.AuthorID]; ok {
			represented[item.AuthorID] = struct{}{}
		}
	}

	return content.DiversityMetrics{
		TotalAuthors:               len(authors),
		FollowedAuthorsRepresented: len(represented),
		MaxPostsFromSingleUser:     maxPosts,
	}
}
