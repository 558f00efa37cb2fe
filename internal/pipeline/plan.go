// Package pipeline runs ingestion units against both providers and reports
// a per-unit outcome.
package pipeline

import (
	"fmt"
	"time"

	"github.com/mauv0809/energy-feeds/internal/ckan"
	"github.com/mauv0809/energy-feeds/internal/models"
)

// productKinds maps every ingestable CKAN product to the kind it carries.
var productKinds = map[string]models.Kind{
	ckan.DefaultProduct: models.SpotPrice,
}

// Plan selects the units of one run: every (kind, year) workbook pair plus
// every product.
type Plan struct {
	Kinds    []models.Kind `json:"kinds,omitempty"`
	Years    []int         `json:"years,omitempty"`
	Products []string      `json:"products,omitempty"`
}

// YearRange returns from..to inclusive. Reversed bounds yield nil.
func YearRange(from, to int) []int {
	if to < from {
		return nil
	}
	years := make([]int, 0, to-from+1)
	for y := from; y <= to; y++ {
		years = append(years, y)
	}
	return years
}

// FullPlan covers every workbook kind from firstYear to the current year and
// the spot-price product.
func FullPlan(firstYear int, now time.Time) Plan {
	return Plan{
		Kinds:    append([]models.Kind(nil), models.SpreadsheetKinds...),
		Years:    YearRange(firstYear, now.Year()),
		Products: []string{ckan.DefaultProduct},
	}
}

// CurrentYearPlan is the routine refresh: this year's workbooks and the
// spot-price product.
func CurrentYearPlan(now time.Time) Plan {
	return FullPlan(now.Year(), now)
}

// Validate rejects kinds that are not published as workbooks, unknown
// products and empty plans.
func (p Plan) Validate() error {
	for _, k := range p.Kinds {
		if !isSpreadsheetKind(k) {
			return fmt.Errorf("kind %q is not published as a workbook", k)
		}
	}
	if len(p.Kinds) > 0 && len(p.Years) == 0 {
		return fmt.Errorf("no years selected for %v", p.Kinds)
	}
	for _, prod := range p.Products {
		if _, ok := productKinds[prod]; !ok {
			return fmt.Errorf("unknown product %q", prod)
		}
	}
	if len(p.units()) == 0 {
		return fmt.Errorf("plan selects no units")
	}
	return nil
}

func isSpreadsheetKind(k models.Kind) bool {
	for _, s := range models.SpreadsheetKinds {
		if s == k {
			return true
		}
	}
	return false
}

// unit is one independent fetch-normalize-write job.
type unit struct {
	provider models.Provider
	kind     models.Kind
	year     int
	product  string
}

func (p Plan) units() []unit {
	var out []unit
	for _, k := range p.Kinds {
		for _, y := range p.Years {
			out = append(out, unit{provider: models.ProviderONS, kind: k, year: y})
		}
	}
	for _, prod := range p.Products {
		out = append(out, unit{provider: models.ProviderCCEE, kind: productKinds[prod], product: prod})
	}
	return out
}
