package ingest

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/mauv0809/energy-feeds/internal/models"
)

// Exact-match vocabularies, keyed by folded label. Slash-joined spellings
// are listed one by one; a joined label not listed here is unknown.
var regionVocabularies = map[models.Provider]map[string]models.Region{
	models.ProviderONS: {
		"NORTE":                        models.RegionNorth,
		"NORDESTE":                     models.RegionNortheast,
		"NORDESTE CENTRO OESTE":        models.RegionNortheast,
		"SUDESTE":                      models.RegionSoutheast,
		"SUDESTE CENTRO OESTE":         models.RegionSoutheast,
		"SUL":                          models.RegionSouth,
		"SIN":                          models.RegionNational,
		"SISTEMA INTERLIGADO NACIONAL": models.RegionNational,
	},
	models.ProviderCCEE: {
		"NORTE":                 models.RegionNorth,
		"NORDESTE":              models.RegionNortheast,
		"NORDESTE CENTRO OESTE": models.RegionNortheast,
		"SUDESTE":               models.RegionSoutheast,
		"SUDESTE CENTRO OESTE":  models.RegionSoutheast,
		"SUL":                   models.RegionSouth,
	},
}

// Canonicalize maps a provider's raw submarket label onto the shared region.
// Matching is exact after folding. ok is false for unknown labels.
func Canonicalize(label string, provider models.Provider) (models.Region, bool) {
	vocab, ok := regionVocabularies[provider]
	if !ok {
		return models.Region{}, false
	}
	r, ok := vocab[foldLabel(label)]
	return r, ok
}

// foldLabel drops diacritics, upper-cases, turns the separators / - _ . into
// spaces, trims the ends and collapses inner whitespace runs to one space.
// "Sudeste/Centro-Oeste " and "SUDESTE / CENTRO OESTE" fold to the same key.
func foldLabel(label string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, label)
	if err != nil {
		s = label
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '-', '_', '.':
			return ' '
		default:
			return unicode.ToUpper(r)
		}
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
