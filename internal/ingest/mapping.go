package ingest

import (
	"fmt"
	"time"

	"github.com/mauv0809/energy-feeds/internal/models"
)

// timestampFunc derives a row's timestamp. ok is false for unresolvable input.
type timestampFunc func(row []any, idx columnIndex) (time.Time, bool)

// Mapping is the fixed source-to-canonical translation for one data-kind.
// Every column field lists accepted source names, first match wins.
type Mapping struct {
	Kind        models.Kind
	Provider    models.Provider
	Region      []string
	TimeColumns []string // checked for presence before normalizing
	Timestamp   timestampFunc
	Values      [][]string // one entry per destination value column
	HourlyOnly  bool
}

var mappings = map[models.Kind]Mapping{
	models.SpotPrice: {
		Kind:        models.SpotPrice,
		Provider:    models.ProviderCCEE,
		Region:      []string{"SUBMERCADO"},
		TimeColumns: []string{"MES_REFERENCIA", "PERIODO_COMERCIALIZACAO"},
		Timestamp:   settlementTimestamp("MES_REFERENCIA", "PERIODO_COMERCIALIZACAO"),
		Values:      [][]string{{"PLD", "PLD_HORA"}},
	},
	models.StoredEnergy: {
		Kind:        models.StoredEnergy,
		Provider:    models.ProviderONS,
		Region:      []string{"nom_subsistema"},
		TimeColumns: []string{"ear_data"},
		Timestamp:   columnTimestamp("ear_data"),
		Values:      [][]string{{"ear_verif_subsistema_mwmes"}},
	},
	models.InflowEnergy: {
		Kind:        models.InflowEnergy,
		Provider:    models.ProviderONS,
		Region:      []string{"nom_subsistema"},
		TimeColumns: []string{"ena_data"},
		Timestamp:   columnTimestamp("ena_data"),
		Values:      [][]string{{"ena_armazenavel_regiao_mwmed"}},
	},
	models.MarginalCost: {
		Kind:        models.MarginalCost,
		Provider:    models.ProviderONS,
		Region:      []string{"nom_subsistema"},
		TimeColumns: []string{"din_instante"},
		Timestamp:   columnTimestamp("din_instante"),
		Values:      [][]string{{"val_cmo"}},
		HourlyOnly:  true,
	},
	models.GenerationBalance: {
		Kind:        models.GenerationBalance,
		Provider:    models.ProviderONS,
		Region:      []string{"nom_subsistema"},
		TimeColumns: []string{"din_instante"},
		Timestamp:   columnTimestamp("din_instante"),
		Values: [][]string{
			{"val_gerhidraulica"},
			{"val_gertermica"},
			{"val_gereolica"},
			{"val_gersolar"},
			{"val_carga"},
			{"val_intercambio"},
		},
	},
}

// MappingFor returns the translation table entry of a kind.
func MappingFor(k models.Kind) (Mapping, error) {
	m, ok := mappings[k]
	if !ok {
		return Mapping{}, fmt.Errorf("no field mapping for kind %q", k)
	}
	return m, nil
}

func columnTimestamp(col string) timestampFunc {
	return func(row []any, idx columnIndex) (time.Time, bool) {
		i, ok := idx[col]
		if !ok {
			return time.Time{}, false
		}
		return ParseTimestamp(cell(row, i))
	}
}

// settlementTimestamp rebuilds a timestamp from a YYYYMM column and a
// 1-based hour-of-month period column.
func settlementTimestamp(monthCol, periodCol string) timestampFunc {
	return func(row []any, idx columnIndex) (time.Time, bool) {
		mi, ok1 := idx[monthCol]
		pi, ok2 := idx[periodCol]
		if !ok1 || !ok2 {
			return time.Time{}, false
		}
		period, ok := ParseInt(cell(row, pi))
		if !ok {
			return time.Time{}, false
		}
		t, err := SettlementTime(getString(cell(row, mi)), period)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
}
