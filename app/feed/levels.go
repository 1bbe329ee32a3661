package feed

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lysyi3m/feed-cascade/app/content"
	"gopkg.in/yaml.v3"
)

type LevelLoader struct {
	levelsFile string
}

func NewLevelLoader(levelsFile string) *LevelLoader {
	return &LevelLoader{levelsFile: levelsFile}
}

// Load reads the cascade definition. Without a file the built-in levels are
// used; a file that exists but does not validate is an error.
func (l *LevelLoader) Load() ([]Level, error) {
	if l.levelsFile == "" {
		slog.Debug("No levels file configured, using default cascade")
		return DefaultLevels(), nil
	}
	if _, err := os.Stat(l.levelsFile); os.IsNotExist(err) {
		slog.Warn("Levels file not found, using default cascade", "path", l.levelsFile)
		return DefaultLevels(), nil
	}

	levels, err := l.parseLevels()
	if err != nil {
		return nil, err
	}

	if err := ValidateLevels(levels); err != nil {
		return nil, fmt.Errorf("invalid levels file %s: %w", l.levelsFile, err)
	}

	for i, level := range levels {
		slog.Debug("Cascade level loaded", "position", i+1, "name", level.Name, "scope", level.Scope,
			"privileged_only", level.PrivilegedOnly, "must_succeed", level.MustSucceed)
	}

	return levels, nil
}

func (l *LevelLoader) parseLevels() ([]Level, error) {
	data, err := os.ReadFile(l.levelsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var file LevelsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return file.Levels, nil
}

var validScopes = map[Scope]bool{
	ScopeFollowed: true,
	ScopePromoted: true,
	ScopeAny:      true,
}

func ValidateLevels(levels []Level) error {
	if len(levels) == 0 {
		return fmt.Errorf("at least one cascade level is required")
	}

	seen := make(map[string]bool, len(levels))
	for i, level := range levels {
		if level.Name == "" {
			return fmt.Errorf("level at index %d has no name", i)
		}
		if seen[level.Name] {
			return fmt.Errorf("duplicate level name '%s'", level.Name)
		}
		seen[level.Name] = true

		if !validScopes[level.Scope] {
			return fmt.Errorf("invalid scope at index %d: %s", i, level.Scope)
		}
		if len(level.Privacy) == 0 {
			return fmt.Errorf("level '%s' must allow at least one privacy level", level.Name)
		}
		for _, p := range level.Privacy {
			if _, err := content.ParsePrivacyLevel(string(p)); err != nil {
				return fmt.Errorf("level '%s': %w", level.Name, err)
			}
		}
	}

	return nil
}
