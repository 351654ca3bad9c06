package classifier

import (
	"context"
	"sort"

	"github.com/fileorg/organizer/internal/store"
	"github.com/fileorg/organizer/internal/vectorstore"
)

// knnCandidate is one aggregated label/score pair from the kNN step,
// spec.md §4.4 step 2's knn_candidates.
type knnCandidate struct {
	Label string
	Score float64
}

// aggregateKNN retrieves the vectors for fileID's own chunks, runs a
// per-vector similarity search against every other file's chunks, and
// aggregates the neighbors' tags weighted by (neighbor tag confidence *
// hit similarity score). Ties are broken by insertion order: labels are
// accumulated in first-seen order and sorted with a stable sort, so equal
// scores keep the order they were first observed in.
func aggregateKNN(ctx context.Context, s *store.Store, vs vectorstore.VectorStore, fileID int64, chunkIDs []string, topK int) ([]knnCandidate, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	vectors, err := vs.GetVectors(ctx, chunkIDs)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	scores := map[string]float64{}
	var order []string
	seen := map[string]bool{}
	tagCache := map[int64][]store.FileTag{}

	// chunkIDs is already in a stable order (file-scan order), so ranging
	// over it rather than the vectors map keeps neighbor discovery
	// deterministic.
	for _, chunkID := range chunkIDs {
		vec, ok := vectors[chunkID]
		if !ok {
			continue
		}
		hits, err := vs.Search(ctx, vec, topK, vectorstore.SearchFilter{ExcludeFileID: fileID})
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			neighborFileID := hit.Payload.FileID
			tags, ok := tagCache[neighborFileID]
			if !ok {
				tags, err = s.GetTagsForFile(ctx, neighborFileID)
				if err != nil {
					return nil, err
				}
				tagCache[neighborFileID] = tags
			}
			for _, tag := range tags {
				weight := tag.Confidence * hit.Score
				if weight <= 0 {
					continue
				}
				if !seen[tag.TagName] {
					seen[tag.TagName] = true
					order = append(order, tag.TagName)
				}
				scores[tag.TagName] += weight
			}
		}
	}

	candidates := make([]knnCandidate, 0, len(order))
	for _, label := range order {
		candidates = append(candidates, knnCandidate{Label: label, Score: scores[label]})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates, nil
}
