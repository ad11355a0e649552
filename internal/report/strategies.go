package report

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/newthinker/trademate/internal/strategy"
	"github.com/olekukonko/tablewriter"
)

// WriteStrategies prints the strategy catalog with default parameters.
func WriteStrategies(w io.Writer, infos []strategy.Info) error {
	table := tablewriter.NewWriter(w)
	table.Header("Strategy", "Description", "Defaults")
	for _, info := range infos {
		if err := table.Append(string(info.Name), info.Description, formatParams(info.Defaults)); err != nil {
			return err
		}
	}
	return table.Render()
}

// formatParams renders params as sorted key=value pairs.
func formatParams(params map[string]any) string {
	keys := slices.Sorted(maps.Keys(params))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return strings.Join(parts, " ")
}
