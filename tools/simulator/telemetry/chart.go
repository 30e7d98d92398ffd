package telemetry

import (
	"io"
	"net/http"
	"slices"
	"sort"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"gonum.org/v1/gonum/stat"
)

// RenderCharts writes an HTML page with cumulative keeper payments and the
// gas used distribution per keeper.
func (c *PerformCollector) RenderCharts(w io.Writer) error {
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(c.paymentChart(), c.gasChart())

	return page.Render(w)
}

// SummaryChart serves the charts rendered by RenderCharts.
func (c *PerformCollector) SummaryChart() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = c.RenderCharts(w)
	}
}

func (c *PerformCollector) paymentChart() *charts.Line {
	blocks, series := c.cumulativePayments()

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Cumulative Keeper Payments",
			Subtitle: "LINK",
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "block", Type: "category"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", AxisLabel: &opts.AxisLabel{Rotate: 90}}),
		charts.WithToolboxOpts(opts.Toolbox{Show: true}),
		charts.WithLegendOpts(opts.Legend{Left: "center", Top: "top"}))

	labels := make([]string, len(blocks))
	for i, block := range blocks {
		labels[i] = strconv.FormatUint(block, 10)
	}

	line.SetXAxis(labels)

	for _, keeper := range sortedKeepers(series) {
		items := make([]opts.LineData, len(series[keeper]))
		for i, value := range series[keeper] {
			items[i] = opts.LineData{Value: value, XAxisIndex: i}
		}

		line.AddSeries(shorten(keeper.Hex(), 10), items)
	}

	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: true}))

	return line
}

func (c *PerformCollector) gasChart() *charts.BoxPlot {
	gasByKeeper := make(map[common.Address][]float64)

	for _, perform := range c.Performs() {
		gasByKeeper[perform.Keeper] = append(gasByKeeper[perform.Keeper], float64(perform.GasUsed))
	}

	keepers := sortedKeepers(gasByKeeper)
	labels := make([]string, len(keepers))
	items := make([]opts.BoxPlotData, 0, len(keepers))

	for i, keeper := range keepers {
		labels[i] = shorten(keeper.Hex(), 10)
		items = append(items, opts.BoxPlotData{Value: fiveNumberSummary(gasByKeeper[keeper])})
	}

	box := charts.NewBoxPlot()
	box.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Gas Used per Perform",
			Subtitle: "by keeper",
		}),
	)
	box.SetXAxis(labels).AddSeries("boxplot", items)

	return box
}

// cumulativePayments returns the blocks with performs and, for each keeper,
// its running total in LINK at each of those blocks.
func (c *PerformCollector) cumulativePayments() ([]uint64, map[common.Address][]float64) {
	performs := c.Performs()

	sort.SliceStable(performs, func(i, j int) bool {
		return performs[i].Block < performs[j].Block
	})

	blocks := make([]uint64, 0)
	for _, perform := range performs {
		if len(blocks) == 0 || blocks[len(blocks)-1] != perform.Block {
			blocks = append(blocks, perform.Block)
		}
	}

	series := make(map[common.Address][]float64)
	totals := make(map[common.Address]float64)

	for _, perform := range performs {
		if _, ok := series[perform.Keeper]; !ok {
			series[perform.Keeper] = make([]float64, len(blocks))
		}
	}

	idx := 0
	for i, block := range blocks {
		for ; idx < len(performs) && performs[idx].Block == block; idx++ {
			totals[performs[idx].Keeper] += toLINK(performs[idx].Payment).InexactFloat64()
		}

		for keeper := range series {
			series[keeper][i] = totals[keeper]
		}
	}

	return blocks, series
}

// fiveNumberSummary returns min, lower quartile, median, upper quartile and
// max of the values.
func fiveNumberSummary(values []float64) []float64 {
	if len(values) == 0 {
		return []float64{0, 0, 0, 0, 0}
	}

	sorted := slices.Clone(values)
	sort.Float64s(sorted)

	return []float64{
		sorted[0],
		stat.Quantile(0.25, stat.Empirical, sorted, nil),
		stat.Quantile(0.5, stat.Empirical, sorted, nil),
		stat.Quantile(0.75, stat.Empirical, sorted, nil),
		sorted[len(sorted)-1],
	}
}

func sortedKeepers[T any](values map[common.Address]T) []common.Address {
	keepers := make([]common.Address, 0, len(values))
	for keeper := range values {
		keepers = append(keepers, keeper)
	}

	sort.Slice(keepers, func(i, j int) bool {
		return keepers[i].Cmp(keepers[j]) < 0
	})

	return keepers
}
