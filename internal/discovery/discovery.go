package discovery

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"webswarm/internal/agent"
	"webswarm/internal/catalog"
	"webswarm/internal/domain"
)

type rule struct {
	keywords    []string
	featureType domain.FeatureType
	category    domain.Category
	description string
	text        string
	priority    int
}

// Rules are evaluated in order; each matching rule yields one feature.
var rules = []rule{
	{[]string{"login", "登录"}, domain.FeatureTypeForm, domain.CategoryAuth, "Login form", "login", 1},
	{[]string{"register", "注册"}, domain.FeatureTypeForm, domain.CategoryAuth, "Registration form", "register", 2},
	{[]string{"search", "搜索"}, domain.FeatureTypeSearch, domain.CategoryInteraction, "Search", "search", 1},
	{[]string{"navigation", "导航", "menu", "菜单"}, domain.FeatureTypeLink, domain.CategoryNavigation, "Navigation links", "navigation", 1},
	{[]string{"form", "表单"}, domain.FeatureTypeForm, domain.CategoryDataEntry, "Data form", "form", 2},
	{[]string{"button", "按钮"}, domain.FeatureTypeButton, domain.CategoryInteraction, "Interactive buttons", "button", 2},
	{[]string{"table", "表格"}, domain.FeatureTypeDataTable, domain.CategoryDisplay, "Data table", "table", 2},
}

// ParseFeatures turns free-text agent output into synthetic feature points by
// keyword presence. Matching ignores case.
func ParseFeatures(text string) []domain.FeaturePoint {
	lower := strings.ToLower(text)
	var out []domain.FeaturePoint
	for _, r := range rules {
		if !containsAny(lower, r.keywords) {
			continue
		}
		out = append(out, domain.FeaturePoint{
			ID:          fmt.Sprintf("feature_%d", len(out)),
			Type:        r.featureType,
			Category:    r.category,
			Description: r.description,
			Text:        r.text,
			Priority:    r.priority,
		})
	}
	return out
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

type Config struct {
	TargetURL  string
	ProfileDir string
	Headless   bool
	FlashMode  bool
	MaxSteps   int
}

type Discoverer struct {
	launcher agent.Launcher
	cfg      Config
	logger   *zap.Logger
}

func New(launcher agent.Launcher, cfg Config, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 30
	}
	return &Discoverer{
		launcher: launcher,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "discovery")),
	}
}

// Discover runs the single exploratory session and extracts feature points.
func (d *Discoverer) Discover(ctx context.Context) ([]domain.FeaturePoint, error) {
	session, err := d.launcher.NewSession(ctx, agent.SessionOptions{
		SlotID:     "Discovery",
		ProfileDir: d.cfg.ProfileDir,
		Headless:   d.cfg.Headless,
		FlashMode:  d.cfg.FlashMode,
		MaxSteps:   d.cfg.MaxSteps,
	})
	if err != nil {
		return nil, fmt.Errorf("open discovery session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			d.logger.Warn("close discovery session", zap.Error(err))
		}
	}()

	output, err := session.Run(ctx, catalog.DiscoveryPrompt(d.cfg.TargetURL))
	if err != nil {
		return nil, fmt.Errorf("run discovery task: %w", err)
	}

	features := ParseFeatures(output)
	d.logger.Info("feature discovery finished", zap.Int("features", len(features)))
	for _, c := range CountByCategory(features) {
		d.logger.Info("discovered category", zap.String("category", string(c.Category)), zap.Int("count", c.Count))
	}
	return features, nil
}

type CategoryCount struct {
	Category domain.Category
	Count    int
}

// CountByCategory tallies features per category in first-seen order.
func CountByCategory(features []domain.FeaturePoint) []CategoryCount {
	index := make(map[domain.Category]int)
	var out []CategoryCount
	for _, f := range features {
		i, ok := index[f.Category]
		if !ok {
			i = len(out)
			index[f.Category] = i
			out = append(out, CategoryCount{Category: f.Category})
		}
		out[i].Count++
	}
	return out
}
