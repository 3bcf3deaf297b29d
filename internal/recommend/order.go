package recommend

import (
	"context"

	"github.com/choosewine/choosewine-api/internal/domain"
)

// BatchFetcher resolves a set of wine IDs in one round trip. Unknown IDs are
// simply absent from the result; order does not matter.
type BatchFetcher func(ctx context.Context, ids []string) ([]domain.Wine, error)

// Order materializes ids into wines, preserving the order of ids. fetch is
// called once with the distinct IDs, and not at all when ids is empty. IDs
// that fetch does not resolve are skipped. An ID repeated in ids yields the
// wine once per occurrence.
func Order(ctx context.Context, ids []string, fetch BatchFetcher) ([]domain.Wine, error) {
	if len(ids) == 0 {
		return []domain.Wine{}, nil
	}

	distinct := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		distinct = append(distinct, id)
	}

	wines, err := fetch(ctx, distinct)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Wine, len(wines))
	for _, w := range wines {
		byID[w.ID] = w
	}

	ordered := make([]domain.Wine, 0, len(ids))
	for _, id := range ids {
		if w, ok := byID[id]; ok {
			ordered = append(ordered, w)
		}
	}
	return ordered, nil
}
