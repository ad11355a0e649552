package strategy

import "sort"

// Kind identifies a built-in strategy
type Kind string

const (
	KindMACrossover Kind = "moving_average"
	KindMomentum    Kind = "momentum"
	KindRSI         Kind = "rsi"
)

// Kinds lists every recognised strategy identifier.
func Kinds() []Kind {
	return []Kind{KindMACrossover, KindMomentum, KindRSI}
}

// DataRequirements specifies what data a strategy needs
type DataRequirements struct {
	PriceHistory int // Bars before the first signal can be defined
	Indicators   []string
}

// Strategy is one of the built-in strategy variants: MACrossover, Momentum
// or RSIThreshold. The set is closed (only this package can implement it)
// and Evaluate switches over it exhaustively.
type Strategy interface {
	Name() Kind
	Description() string
	RequiredData() DataRequirements
	Params() map[string]any

	isStrategy()
}

// Info describes a strategy for listings.
type Info struct {
	Name        Kind           `json:"name"`
	Description string         `json:"description"`
	Defaults    map[string]any `json:"defaults"`
}

// Catalog returns every built-in strategy with its default parameters.
func Catalog() []Info {
	defaults := []Strategy{DefaultMACrossover(), DefaultMomentum(), DefaultRSIThreshold()}
	infos := make([]Info, 0, len(defaults))
	for _, s := range defaults {
		infos = append(infos, Info{
			Name:        s.Name(),
			Description: s.Description(),
			Defaults:    s.Params(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
