package catalog

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/tourlink/marketplace-backend/internal/models"
	"gopkg.in/yaml.v3"
)

// planNamespace derives stable plan IDs from slugs
var planNamespace = uuid.MustParse("6f1c2d4e-7a43-4b6e-9d0a-3c5b8e2f1a90")

type catalogFile struct {
	Plans []models.Plan `yaml:"plans"`
}

// YAMLCatalog is a static price list read once at startup
type YAMLCatalog struct {
	plans  []models.Plan
	bySlug map[string]models.Plan
}

// LoadFile reads a YAML plan catalog. Environment variables in the file are
// expanded before parsing.
func LoadFile(path string) (*YAMLCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan catalog: %w", err)
	}
	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse builds a catalog from YAML bytes
func Parse(data []byte) (*YAMLCatalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse plan catalog: %w", err)
	}

	c := &YAMLCatalog{bySlug: make(map[string]models.Plan, len(file.Plans))}
	for _, plan := range file.Plans {
		plan.Slug = strings.TrimSpace(plan.Slug)
		plan.Currency = strings.ToUpper(plan.Currency)
		if plan.Slug == "" {
			return nil, fmt.Errorf("plan catalog: entry without slug")
		}
		if _, dup := c.bySlug[plan.Slug]; dup {
			return nil, fmt.Errorf("plan catalog: duplicate slug %q", plan.Slug)
		}
		if plan.Type != models.PlanTypeAd && plan.Type != models.PlanTypeMembership {
			return nil, fmt.Errorf("plan catalog: %q has unknown type %q", plan.Slug, plan.Type)
		}
		if _, err := models.ParsePlanDuration(plan.Slug); err != nil {
			return nil, fmt.Errorf("plan catalog: %w", err)
		}
		if plan.Price <= 0 || len(plan.Currency) != 3 {
			return nil, fmt.Errorf("plan catalog: %q needs a positive price and a 3-letter currency", plan.Slug)
		}
		plan.ID = uuid.NewSHA1(planNamespace, []byte(plan.Slug))
		c.bySlug[plan.Slug] = plan
		if plan.Active {
			c.plans = append(c.plans, plan)
		}
	}

	sort.SliceStable(c.plans, func(i, j int) bool {
		if c.plans[i].Type != c.plans[j].Type {
			return c.plans[i].Type < c.plans[j].Type
		}
		if c.plans[i].Price != c.plans[j].Price {
			return c.plans[i].Price < c.plans[j].Price
		}
		return c.plans[i].Slug < c.plans[j].Slug
	})

	return c, nil
}

// GetBySlug returns an active plan; nil if missing or inactive
func (c *YAMLCatalog) GetBySlug(_ context.Context, slug string) (*models.Plan, error) {
	plan, ok := c.bySlug[slug]
	if !ok || !plan.Active {
		return nil, nil
	}
	return &plan, nil
}

// List returns active plans in the same order as the plans table listing
func (c *YAMLCatalog) List(_ context.Context) ([]models.Plan, error) {
	out := make([]models.Plan, len(c.plans))
	copy(out, c.plans)
	return out, nil
}
