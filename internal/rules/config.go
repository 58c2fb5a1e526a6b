// Package rules evaluates configurable reschedule rules against the active
// lead population. Rules are defined in a YAML file, loaded at startup, and
// never mutated at runtime.
package rules

import (
	"fmt"
	"os"

	"leadrouter_backend/internal/leads/domain"

	"gopkg.in/yaml.v3"
)

// Rule frequencies. Rules are evaluated on every monitoring tick and gated
// by how recently they last ran; there is no wall-clock time-of-day match.
const (
	FrequencyEveryTick = "every_tick"
	FrequencyHourly    = "hourly"
	FrequencyDaily     = "daily"
)

type Trigger struct {
	// DaysWithoutContact is the calendar-day threshold since the last
	// contact attempt (or since creation when no attempt exists).
	DaysWithoutContact int      `yaml:"daysWithoutContact" json:"daysWithoutContact"`
	Stages             []string `yaml:"stages" json:"stages"`
	ExcludedStatuses   []string `yaml:"excludedStatuses" json:"excludedStatuses"`
	MinAttempts        *int     `yaml:"minAttempts" json:"minAttempts,omitempty"`
	MaxAttempts        *int     `yaml:"maxAttempts" json:"maxAttempts,omitempty"`
}

type Actions struct {
	Redistribute bool `yaml:"redistribute" json:"redistribute"`
	CreateTask   bool `yaml:"createFollowUpTask" json:"createFollowUpTask"`
	BumpPriority bool `yaml:"bumpPriority" json:"bumpPriority"`
	Notify       bool `yaml:"notify" json:"notify"`
}

type Rule struct {
	ID        string  `yaml:"id" json:"id"`
	Enabled   bool    `yaml:"enabled" json:"enabled"`
	Frequency string  `yaml:"frequency" json:"frequency"`
	Trigger   Trigger `yaml:"trigger" json:"trigger"`
	Actions   Actions `yaml:"actions" json:"actions"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads and validates the rule set from a YAML file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	seen := make(map[string]bool, len(file.Rules))
	for i := range file.Rules {
		if err := validateRule(&file.Rules[i]); err != nil {
			return nil, fmt.Errorf("rule %q: %w", file.Rules[i].ID, err)
		}
		if seen[file.Rules[i].ID] {
			return nil, fmt.Errorf("duplicate rule id %q", file.Rules[i].ID)
		}
		seen[file.Rules[i].ID] = true
	}
	return file.Rules, nil
}

func validateRule(r *Rule) error {
	if r.ID == "" {
		return fmt.Errorf("missing id")
	}
	if r.Frequency == "" {
		r.Frequency = FrequencyDaily
	}
	switch r.Frequency {
	case FrequencyEveryTick, FrequencyHourly, FrequencyDaily:
	default:
		return fmt.Errorf("unknown frequency %q", r.Frequency)
	}
	if r.Trigger.DaysWithoutContact < 0 {
		return fmt.Errorf("daysWithoutContact must not be negative")
	}
	for _, stage := range r.Trigger.Stages {
		if !domain.IsKnownStage(stage) {
			return fmt.Errorf("unknown stage %q", stage)
		}
	}
	for _, status := range r.Trigger.ExcludedStatuses {
		if !domain.IsKnownStatus(status) {
			return fmt.Errorf("unknown status %q", status)
		}
	}
	if r.Trigger.MinAttempts != nil && r.Trigger.MaxAttempts != nil && *r.Trigger.MinAttempts > *r.Trigger.MaxAttempts {
		return fmt.Errorf("minAttempts exceeds maxAttempts")
	}
	if !r.Actions.Redistribute && !r.Actions.CreateTask && !r.Actions.BumpPriority && !r.Actions.Notify {
		return fmt.Errorf("rule has no actions")
	}
	return nil
}
