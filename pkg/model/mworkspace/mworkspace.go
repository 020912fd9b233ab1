//nolint:revive // exported
package mworkspace

import (
	"strings"
	"time"

	"pairbench/server/pkg/idwrap"
)

// ExecSettings controls the execution feature per workspace.
type ExecSettings struct {
	Enabled      bool
	MaxFileBytes int64
	Languages    []string
}

// LanguageAllowed reports whether the workspace permits running the given
// language. An empty list means the workspace inherits the server allow-list.
func (s ExecSettings) LanguageAllowed(language string) bool {
	if len(s.Languages) == 0 {
		return true
	}
	for _, l := range s.Languages {
		if l == language {
			return true
		}
	}
	return false
}

// LanguagesString flattens the allow-list for storage.
func (s ExecSettings) LanguagesString() string {
	return strings.Join(s.Languages, ",")
}

// LanguagesFromString parses the stored allow-list column.
func LanguagesFromString(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type Workspace struct {
	ID          idwrap.IDWrap
	Name        string
	OwnerID     idwrap.IDWrap
	InviteToken string
	Exec        ExecSettings
	Updated     time.Time
}

func (w Workspace) GetCreatedTime() time.Time {
	return w.ID.Time()
}
