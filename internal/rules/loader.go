package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// LoadDir reads every *.toml file directly under dir and decodes it into a
// Rule, per original_source/rules.rs's load_rules_from_dir. A missing
// directory is not an error: it simply yields no rules, since rules are
// optional (spec.md §4.5 has no mandatory built-in rule set).
func LoadDir(dir string) ([]Rule, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rules: read dir %s: %w", dir, err)
	}

	var out []Rule
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".toml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("rules: read %s: %w", path, err)
		}
		var r Rule
		if err := toml.Unmarshal(content, &r); err != nil {
			return nil, fmt.Errorf("rules: parse %s: %w", path, err)
		}
		out = append(out, r)
	}
	return out, nil
}
