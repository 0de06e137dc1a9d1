package index

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/xxxsen/docfinder/internal/model"
	appErr "github.com/xxxsen/docfinder/internal/pkg/errors"
)

type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricDot       Metric = "dot"
	MetricEuclidean Metric = "euclidean"
)

func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return MetricCosine, nil
	case MetricCosine, MetricDot, MetricEuclidean:
		return m, nil
	}
	return "", appErr.New(appErr.ErrInvalid, fmt.Sprintf("unknown metric %q", s))
}

// Score returns the similarity of a and b under metric; higher is always more similar.
// Euclidean distance d is reported as 1/(1+d).
func Score(metric Metric, a, b []float32) float64 {
	switch metric {
	case MetricDot:
		return dotProduct(a, b)
	case MetricEuclidean:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return 1 / (1 + math.Sqrt(sum))
	default:
		na, nb := norm(a), norm(b)
		if na == 0 || nb == 0 {
			return 0
		}
		return dotProduct(a, b) / (na * nb)
	}
}

func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	return math.Sqrt(dotProduct(v, v))
}

type candidate struct {
	hit model.SearchHit
	seq int64
}

// topK orders candidates by descending score, breaking ties by insertion sequence.
func topK(items []candidate, k int) []model.SearchHit {
	if k <= 0 || len(items) == 0 {
		return []model.SearchHit{}
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].hit.Score != items[j].hit.Score {
			return items[i].hit.Score > items[j].hit.Score
		}
		return items[i].seq < items[j].seq
	})
	if len(items) > k {
		items = items[:k]
	}
	out := make([]model.SearchHit, 0, len(items))
	for _, item := range items {
		out = append(out, item.hit)
	}
	return out
}
