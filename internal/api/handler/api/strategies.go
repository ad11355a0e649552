package api

import (
	"net/http"

	"github.com/newthinker/trademate/internal/api/response"
	"github.com/newthinker/trademate/internal/collector"
	"github.com/newthinker/trademate/internal/strategy"
)

// Strategies lists the built-in strategies with their default parameters
// and the accepted lookback periods.
func Strategies(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]any{
		"strategies":     strategy.Catalog(),
		"periods":        collector.Periods(),
		"default_period": collector.DefaultPeriod,
	})
}
