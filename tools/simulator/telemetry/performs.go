package telemetry

import (
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/smartcontractkit/keeper-registry/pkg/types"
)

// linkDecimals is the LINK token precision used when reporting juels.
const linkDecimals = 18

type PerformRecord struct {
	Block    uint64         `json:"block"`
	Keeper   common.Address `json:"keeper"`
	UpkeepID string         `json:"upkeepID"`
	Success  bool           `json:"success"`
	GasUsed  uint64         `json:"gasUsed"`
	Payment  *big.Int       `json:"payment"`
}

type ErrorRecord struct {
	Block    uint64         `json:"block"`
	Keeper   common.Address `json:"keeper"`
	UpkeepID string         `json:"upkeepID"`
	Err      string         `json:"errorMessage"`
}

// Summary aggregates a run. Payment statistics are in LINK.
type Summary struct {
	Checks        int
	Eligible      int
	Performs      int
	Failed        int
	Errors        int
	TotalPaid     *big.Int
	MeanPayment   float64
	StdDevPayment float64
	MeanGasUsed   float64
}

// PerformCollector records keeper checks, performs and errors.
type PerformCollector struct {
	baseCollector
	filePath string
	verbose  bool

	mu       sync.Mutex
	checks   map[types.FailureReason]int
	performs []PerformRecord
	errs     []ErrorRecord
}

func NewPerformCollector(path string, verbose bool) *PerformCollector {
	return &PerformCollector{
		baseCollector: baseCollector{
			t: PerformType,
		},
		filePath: path,
		verbose:  verbose,
		checks:   make(map[types.FailureReason]int),
		performs: make([]PerformRecord, 0),
		errs:     make([]ErrorRecord, 0),
	}
}

func (c *PerformCollector) RecordCheck(_ uint64, _ common.Address, result types.CheckResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.checks[result.FailureReason]++
}

func (c *PerformCollector) RecordPerform(block uint64, keeper common.Address, result types.PerformResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	payment := new(big.Int)
	if result.Payment != nil {
		payment.Set(result.Payment)
	}

	c.performs = append(c.performs, PerformRecord{
		Block:    block,
		Keeper:   keeper,
		UpkeepID: result.UpkeepID.String(),
		Success:  result.Success,
		GasUsed:  result.GasUsed,
		Payment:  payment,
	})
}

func (c *PerformCollector) RecordError(block uint64, keeper common.Address, id types.UpkeepIdentifier, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.errs = append(c.errs, ErrorRecord{
		Block:    block,
		Keeper:   keeper,
		UpkeepID: id.String(),
		Err:      err.Error(),
	})
}

func (c *PerformCollector) Performs() []PerformRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.performs)
}

func (c *PerformCollector) Errors() []ErrorRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.errs)
}

func (c *PerformCollector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	summary := Summary{
		Eligible:  c.checks[types.FailureReasonNone],
		Errors:    len(c.errs),
		TotalPaid: new(big.Int),
	}

	for _, count := range c.checks {
		summary.Checks += count
	}

	payments := make([]float64, 0, len(c.performs))
	gasUsed := make([]float64, 0, len(c.performs))

	for _, perform := range c.performs {
		summary.Performs++

		if !perform.Success {
			summary.Failed++
		}

		summary.TotalPaid.Add(summary.TotalPaid, perform.Payment)

		payments = append(payments, toLINK(perform.Payment).InexactFloat64())
		gasUsed = append(gasUsed, float64(perform.GasUsed))
	}

	switch {
	case len(payments) > 1:
		summary.MeanPayment, summary.StdDevPayment = stat.MeanStdDev(payments, nil)
		summary.MeanGasUsed = stat.Mean(gasUsed, nil)
	case len(payments) == 1:
		// sample deviation is undefined for a single perform
		summary.MeanPayment = payments[0]
		summary.MeanGasUsed = gasUsed[0]
	}

	return summary
}

// PrintTabularResults renders per keeper totals and check outcomes.
func (c *PerformCollector) PrintTabularResults() string {
	summary := c.Summary()
	keepers := c.byKeeper()

	tw := table.NewWriter()
	tw.SetTitle("Keeper Performs and Payments")
	tw.AppendHeader(table.Row{"Keeper", "Performs", "Failed", "Gas Used", "Paid (LINK)"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
	})

	for _, keeper := range keepers {
		tw.AppendRow(table.Row{
			shorten(keeper.address.Hex(), 10),
			keeper.performs,
			keeper.failed,
			keeper.gasUsed,
			toLINK(keeper.paid).StringFixed(6),
		})
	}

	tw.AppendFooter(table.Row{
		"total",
		summary.Performs,
		summary.Failed,
		"",
		toLINK(summary.TotalPaid).StringFixed(6),
	})

	outcomes := table.NewWriter()
	outcomes.SetTitle("Check Outcomes")
	outcomes.AppendHeader(table.Row{"Outcome", "Count"})

	c.mu.Lock()
	reasons := make([]types.FailureReason, 0, len(c.checks))
	for reason := range c.checks {
		reasons = append(reasons, reason)
	}

	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })

	for _, reason := range reasons {
		outcomes.AppendRow(table.Row{reason.String(), c.checks[reason]})
	}
	c.mu.Unlock()

	outcomes.AppendFooter(table.Row{"errors", summary.Errors})

	return fmt.Sprintf("%s\n%s\npayment mean %.6f LINK, std dev %.6f LINK, mean gas used %.0f\n",
		tw.Render(), outcomes.Render(), summary.MeanPayment, summary.StdDevPayment, summary.MeanGasUsed)
}

// WriteResults writes the raw perform and error records as JSON to the
// collector path. It does nothing unless the collector is verbose.
func (c *PerformCollector) WriteResults() error {
	if !c.verbose {
		return nil
	}

	if err := os.MkdirAll(c.filePath, 0750); err != nil && !os.IsExist(err) {
		return errors.Wrapf(err, "create telemetry directory %s", c.filePath)
	}

	b, err := json.Marshal(c.Performs())
	if err != nil {
		return err
	}

	if err := writeDataToFile(filepath.Join(c.filePath, "performs.json"), b); err != nil {
		return err
	}

	b, err = json.Marshal(c.Errors())
	if err != nil {
		return err
	}

	return writeDataToFile(filepath.Join(c.filePath, "errors.json"), b)
}

type keeperTotals struct {
	address  common.Address
	performs int
	failed   int
	gasUsed  uint64
	paid     *big.Int
}

func (c *PerformCollector) byKeeper() []*keeperTotals {
	c.mu.Lock()
	defer c.mu.Unlock()

	lookup := make(map[common.Address]*keeperTotals)
	totals := make([]*keeperTotals, 0)

	for _, perform := range c.performs {
		keeper, ok := lookup[perform.Keeper]
		if !ok {
			keeper = &keeperTotals{address: perform.Keeper, paid: new(big.Int)}
			lookup[perform.Keeper] = keeper
			totals = append(totals, keeper)
		}

		keeper.performs++
		keeper.gasUsed += perform.GasUsed
		keeper.paid.Add(keeper.paid, perform.Payment)

		if !perform.Success {
			keeper.failed++
		}
	}

	sort.Slice(totals, func(i, j int) bool {
		return totals[i].address.Cmp(totals[j].address) < 0
	})

	return totals
}

func toLINK(juels *big.Int) decimal.Decimal {
	if juels == nil {
		return decimal.Zero
	}

	return decimal.NewFromBigInt(juels, -linkDecimals)
}

func shorten(value string, length int) string {
	if len(value) <= length {
		return value
	}

	return value[:length]
}

func writeDataToFile(path string, data []byte) error {
	var perms fs.FileMode = 0666

	flag := os.O_RDWR | os.O_CREATE | os.O_TRUNC

	f, err := os.OpenFile(path, flag, perms)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}

	defer f.Close()

	_, err = f.Write(data)

	return errors.Wrapf(err, "write %s", path)
}
