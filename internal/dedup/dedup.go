package dedup

import (
	"crypto/md5"
	"encoding/hex"

	"go.uber.org/zap"

	"webswarm/internal/domain"
)

// Fingerprint identifies a feature by content, ignoring its id, selector and
// priority.
func Fingerprint(f domain.FeaturePoint) string {
	sum := md5.Sum([]byte(string(f.Type) + "_" + string(f.Category) + "_" + f.Description + "_" + f.Text))
	return hex.EncodeToString(sum[:])
}

type Result struct {
	Unique     []domain.FeaturePoint
	Duplicates []domain.FeaturePoint
}

// Deduplicate keeps the first feature of every fingerprint, preserving order.
func Deduplicate(features []domain.FeaturePoint) Result {
	seen := make(map[string]struct{}, len(features))
	res := Result{Unique: make([]domain.FeaturePoint, 0, len(features))}
	for _, f := range features {
		key := Fingerprint(f)
		if _, ok := seen[key]; ok {
			res.Duplicates = append(res.Duplicates, f)
			continue
		}
		seen[key] = struct{}{}
		res.Unique = append(res.Unique, f)
	}
	return res
}

type DuplicateCounter interface {
	AddDuplicateFeatures(n int)
}

type Deduplicator struct {
	logger  *zap.Logger
	counter DuplicateCounter
}

func New(logger *zap.Logger, counter DuplicateCounter) *Deduplicator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduplicator{
		logger:  logger.With(zap.String("component", "dedup")),
		counter: counter,
	}
}

func (d *Deduplicator) Deduplicate(features []domain.FeaturePoint) []domain.FeaturePoint {
	res := Deduplicate(features)
	for _, f := range res.Duplicates {
		d.logger.Info("skipping duplicate feature", zap.String("id", f.ID), zap.String("description", f.Description))
	}
	if d.counter != nil && len(res.Duplicates) > 0 {
		d.counter.AddDuplicateFeatures(len(res.Duplicates))
	}
	d.logger.Info("deduplication finished",
		zap.Int("before", len(features)),
		zap.Int("after", len(res.Unique)),
	)
	return res.Unique
}
