package services

import (
	"fmt"
	"os"

	"book-club-system/models"

	"gopkg.in/yaml.v3"
)

// RewardTable maps each action to its base XP reward. It is read-only once
// handed to a service.
type RewardTable map[models.ActionKind]int64

// DefaultRewards returns a fresh copy of the built-in reward table.
func DefaultRewards() RewardTable {
	return RewardTable{
		models.ActionCompleteBook:      100,
		models.ActionVote:              5,
		models.ActionFirstComment:      15,
		models.ActionAdditionalComment: 5,
		models.ActionCreateClub:        50,
		models.ActionJoinClub:          20,
		models.ActionAddBook:           10,
		models.ActionCreateVote:        10,
		models.ActionConfirmAttendance: 5,
		models.ActionAttendSession:     25,
		models.ActionOrganizeSession:   40,
	}
}

// For returns the reward for action, or 0 when the action is not mapped.
func (t RewardTable) For(action models.ActionKind) int64 {
	return t[action]
}

// LoadRewardTable overlays the YAML file at path on top of DefaultRewards.
// An empty path yields the defaults.
//
//	COMPLETAR_LIBRO: 150
//	VOTAR: 0
func LoadRewardTable(path string) (RewardTable, error) {
	table := DefaultRewards()
	if path == "" {
		return table, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reward table: %w", err)
	}
	return parseRewardOverrides(table, raw)
}

func parseRewardOverrides(table RewardTable, raw []byte) (RewardTable, error) {
	var overrides map[string]int64
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("parse reward table: %w", err)
	}

	for name, amount := range overrides {
		action := models.ActionKind(name)
		if !action.Known() {
			return nil, fmt.Errorf("reward table: unknown action %q", name)
		}
		if amount < 0 {
			return nil, fmt.Errorf("reward table: negative reward %d for %s", amount, name)
		}
		table[action] = amount
	}
	return table, nil
}
