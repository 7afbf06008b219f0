package allocate

import (
	"errors"
	"fmt"
	"strings"

	"webswarm/internal/domain"
)

var ErrNoSlots = errors.New("allocator needs at least one slot")

// slotByCategory is the fixed lane for every category. Unknown categories use
// slot 0, and indexes wrap when fewer slots are configured.
var slotByCategory = map[domain.Category]int{
	domain.CategoryAuth:        0,
	domain.CategoryNavigation:  1,
	domain.CategoryDataEntry:   2,
	domain.CategoryInteraction: 3,
	domain.CategoryDisplay:     4,
}

type Allocator struct {
	Slots int
}

func New(slots int) Allocator {
	return Allocator{Slots: slots}
}

// SlotFor returns the lane index for category. It returns 0 when slots < 1.
func SlotFor(category domain.Category, slots int) int {
	if slots < 1 {
		return 0
	}
	return slotByCategory[category] % slots
}

func SlotID(index int) string {
	return fmt.Sprintf("Agent-%d", index+1)
}

func (a Allocator) Allocate(features []domain.FeaturePoint) ([]domain.Allocation, error) {
	if a.Slots < 1 {
		return nil, ErrNoSlots
	}

	lanes := make([][]domain.FeaturePoint, a.Slots)
	for _, group := range groupByCategory(features) {
		idx := SlotFor(group.category, a.Slots)
		lanes[idx] = append(lanes[idx], group.features...)
	}

	var out []domain.Allocation
	for i, lane := range lanes {
		if len(lane) == 0 {
			continue
		}
		out = append(out, domain.Allocation{
			AgentID:     SlotID(i),
			Features:    lane,
			Description: Describe(lane),
			Count:       len(lane),
		})
	}
	return out, nil
}

type categoryGroup struct {
	category domain.Category
	features []domain.FeaturePoint
}

func groupByCategory(features []domain.FeaturePoint) []categoryGroup {
	index := make(map[domain.Category]int)
	var groups []categoryGroup
	for _, f := range features {
		i, ok := index[f.Category]
		if !ok {
			i = len(groups)
			index[f.Category] = i
			groups = append(groups, categoryGroup{category: f.Category})
		}
		groups[i].features = append(groups[i].features, f)
	}
	return groups
}

// Describe summarises a lane, e.g.
// "Test 2 feature points (categories: auth; types: form)".
func Describe(features []domain.FeaturePoint) string {
	var categories, types []string
	seenCat := make(map[domain.Category]struct{})
	seenType := make(map[domain.FeatureType]struct{})
	for _, f := range features {
		if _, ok := seenCat[f.Category]; !ok {
			seenCat[f.Category] = struct{}{}
			categories = append(categories, string(f.Category))
		}
		if _, ok := seenType[f.Type]; !ok {
			seenType[f.Type] = struct{}{}
			types = append(types, string(f.Type))
		}
	}
	return fmt.Sprintf("Test %d feature points (categories: %s; types: %s)",
		len(features), strings.Join(categories, ", "), strings.Join(types, ", "))
}
