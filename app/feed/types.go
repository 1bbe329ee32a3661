package feed

import (
	"github.com/lysyi3m/feed-cascade/app/content"
)

type Scope string

const (
	ScopeFollowed Scope = "followed"
	ScopePromoted Scope = "promoted"
	ScopeAny      Scope = "any"
)

// Level is one step of the cascade. Levels are static configuration and are
// never modified after start-up.
type Level struct {
	Name           string                 `yaml:"name"`
	Scope          Scope                  `yaml:"scope"`
	Privacy        []content.PrivacyLevel `yaml:"privacy"`
	PrivilegedOnly bool                   `yaml:"privileged_only"`
	MustSucceed    bool                   `yaml:"must_succeed"`
}

type LevelsFile struct {
	Levels []Level `yaml:"levels"`
}

// DefaultLevels returns the built-in cascade: followed authors first, the
// coaches-only pool for privileged viewers, promoted content, and finally
// everything public as the backstop.
func DefaultLevels() []Level {
	return []Level{
		{
			Name:    "followed",
			Scope:   ScopeFollowed,
			Privacy: []content.PrivacyLevel{content.PrivacyPublic, content.PrivacyFriends, content.PrivacyPublicHighlight},
		},
		{
			Name:           "coaches",
			Scope:          ScopeAny,
			Privacy:        []content.PrivacyLevel{content.PrivacyCoachesOnly},
			PrivilegedOnly: true,
		},
		{
			Name:    "promoted",
			Scope:   ScopePromoted,
			Privacy: []content.PrivacyLevel{content.PrivacyPublic, content.PrivacyPublicHighlight},
		},
		{
			Name:    "public",
			Scope:   ScopeAny,
			Privacy: []content.PrivacyLevel{content.PrivacyPublic, content.PrivacyPublicHighlight},
		},
	}
}
