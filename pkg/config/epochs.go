// Copyright 2025 Certen Protocol
//
// Epoch table loader: reads the reward-cycle epoch table (§4.2,
// rewardcycle.Table) from a YAML file, with ${VAR_NAME} environment
// variable substitution so the same file works across networks.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/certen/chain-coordinator/pkg/rewardcycle"
)

// EpochConfig is the YAML-serializable form of one rewardcycle.Epoch.
type EpochConfig struct {
	Name            string `yaml:"name"`
	StartBurnHeight uint64 `yaml:"start_burn_height"`
	PoxSunsetHeight uint64 `yaml:"pox_sunset_height"`

	FStarNumerator   uint64 `yaml:"f_star_numerator"`
	FStarDenominator uint64 `yaml:"f_star_denominator"`

	PostTransition bool `yaml:"post_transition"`

	MinParticipationNumerator   uint64 `yaml:"min_participation_numerator"`
	MinParticipationDenominator uint64 `yaml:"min_participation_denominator"`

	RewardCycleLength uint64 `yaml:"reward_cycle_length"`
	PrepareLength     uint64 `yaml:"prepare_length"`
}

// EpochTableConfig is the top-level YAML document: an ordered list of
// epochs, earliest StartBurnHeight first.
type EpochTableConfig struct {
	Epochs []EpochConfig `yaml:"epochs"`
}

// ToTable converts the loaded document into a rewardcycle.Table.
func (c EpochTableConfig) ToTable() rewardcycle.Table {
	table := make(rewardcycle.Table, len(c.Epochs))
	for i, e := range c.Epochs {
		table[i] = rewardcycle.Epoch{
			Name:                        e.Name,
			StartBurnHeight:             e.StartBurnHeight,
			PoxSunsetHeight:             e.PoxSunsetHeight,
			FStarNumerator:              e.FStarNumerator,
			FStarDenominator:            e.FStarDenominator,
			PostTransition:              e.PostTransition,
			MinParticipationNumerator:   e.MinParticipationNumerator,
			MinParticipationDenominator: e.MinParticipationDenominator,
			RewardCycleLength:           e.RewardCycleLength,
			PrepareLength:               e.PrepareLength,
		}
	}
	return table
}

// LoadEpochTable loads the epoch table from a YAML file at path,
// substituting ${VAR_NAME} references against the process environment
// first.
func LoadEpochTable(path string) (rewardcycle.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read epoch config %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	var doc EpochTableConfig
	if err := yaml.Unmarshal([]byte(expanded), &doc); err != nil {
		return nil, fmt.Errorf("parse epoch config %s: %w", path, err)
	}
	if len(doc.Epochs) == 0 {
		return nil, fmt.Errorf("epoch config %s: at least one epoch is required", path)
	}
	for i, e := range doc.Epochs {
		if e.RewardCycleLength == 0 {
			return nil, fmt.Errorf("epoch config %s: epoch %d (%s): reward_cycle_length is required", path, i, e.Name)
		}
	}

	return doc.ToTable(), nil
}

// Duration wraps time.Duration for YAML unmarshaling, carried from the
// original anchor configuration loader for any future settings that
// need a human-readable duration string instead of a bare integer.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// envVarPattern matches ${VAR_NAME} or ${VAR_NAME:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}
