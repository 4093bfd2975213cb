package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// CommandRule is one configured trigger -> reply mapping. A rule fires when a
// chat message starts with Trigger and carries the matching MsgTypeCode.
// The rule set is loaded once at startup and read-only afterwards.
type CommandRule struct {
	Trigger     string `json:"command"`
	MsgTypeCode int    `json:"msgTypeCode"`
	Reply       string `json:"reply"`
}

// LoadCommands reads the command rule file (a JSON array). Callers are expected
// to treat an error as non-fatal and continue with an empty rule set.
func LoadCommands(path string) ([]CommandRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read commands file: %w", err)
	}
	var rules []CommandRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse commands file: %w", err)
	}
	return rules, nil
}
