package models

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies one canonical measurement category.
type Kind string

const (
	SpotPrice         Kind = "pld"
	StoredEnergy      Kind = "ear"
	InflowEnergy      Kind = "ena"
	MarginalCost      Kind = "cmo"
	GenerationBalance Kind = "balance"
)

// Kinds lists every data-kind in a stable order.
var Kinds = []Kind{SpotPrice, StoredEnergy, InflowEnergy, MarginalCost, GenerationBalance}

// SpreadsheetKinds are the kinds delivered as yearly workbooks.
var SpreadsheetKinds = []Kind{StoredEnergy, InflowEnergy, MarginalCost, GenerationBalance}

// ParseKind accepts the short tag ("ear") case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown data kind %q", s)
}

// Destination describes the relation a kind is persisted into.
type Destination struct {
	Table   string
	Columns []string // value columns, in Record.Values order
}

var destinations = map[Kind]Destination{
	SpotPrice:         {Table: "pld_submarket", Columns: []string{"pld"}},
	StoredEnergy:      {Table: "ear_submarket", Columns: []string{"ear"}},
	InflowEnergy:      {Table: "ena_submarket", Columns: []string{"ena"}},
	MarginalCost:      {Table: "cmo_submarket", Columns: []string{"cmo"}},
	GenerationBalance: {Table: "energy_balance", Columns: []string{"hydro", "thermal", "wind", "solar", "load", "exchange"}},
}

// DestinationFor returns the destination relation of a kind.
func DestinationFor(k Kind) (Destination, bool) {
	d, ok := destinations[k]
	return d, ok
}

// Provider names an external data source.
type Provider string

const (
	ProviderCCEE Provider = "ccee" // paginated open-data API
	ProviderONS  Provider = "ons"  // yearly spreadsheets
)

// Region is the canonical submarket identity.
type Region struct {
	Code string `json:"region_code"`
	Name string `json:"region_name"`
}

var (
	RegionNorth     = Region{Code: "N", Name: "NORTH"}
	RegionNortheast = Region{Code: "NE", Name: "NORTHEAST"}
	RegionSoutheast = Region{Code: "SE", Name: "SOUTHEAST"}
	RegionSouth     = Region{Code: "S", Name: "SOUTH"}
	RegionNational  = Region{Code: "SIN", Name: "NATIONAL"}
)

// Record is one normalized row. Natural key is (Region.Code, Timestamp).
type Record struct {
	Region    Region
	Timestamp time.Time
	Values    []float64
}

// Batch is the normalized output for one kind.
type Batch struct {
	Kind     Kind
	Records  []Record
	Raw      int            // rows seen in the source table
	Dropped  map[string]int // reason -> rows
	Unmapped []string       // distinct region labels with no canonical match
}

// DroppedTotal sums all drop reasons.
func (b Batch) DroppedTotal() int {
	n := 0
	for _, c := range b.Dropped {
		n += c
	}
	return n
}
