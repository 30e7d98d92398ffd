package run

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/smartcontractkit/keeper-registry/tools/simulator/config"
)

// LoadSimulationPlan reads a plan from path. Files ending in .yaml or .yml
// are decoded as YAML, everything else as JSON.
func LoadSimulationPlan(path string) (config.SimulationPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return config.SimulationPlan{}, errors.Wrapf(err, "read simulation plan %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		plan, err := config.DecodeSimulationPlanYAML(data)

		return plan, errors.Wrapf(err, "decode simulation plan %s", path)
	default:
		plan, err := config.DecodeSimulationPlan(data)

		return plan, errors.Wrapf(err, "decode simulation plan %s", path)
	}
}
