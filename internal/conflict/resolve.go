package conflict

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// Entity is a decoded domain object keyed by field name.
type Entity = map[string]any

// Source names the side whose copy survived.
type Source string

const (
	SourceLocal  Source = "local"
	SourceServer Source = "server"
)

// Keys names the timestamp and author fields read from each side.
type Keys struct {
	LocalModifiedAt string
	ServerUpdatedAt string
	ServerUpdatedBy string
}

// DefaultKeys returns the field names used by the dispatch API.
func DefaultKeys() Keys {
	return Keys{
		LocalModifiedAt: "modifiedAt",
		ServerUpdatedAt: "updatedAt",
		ServerUpdatedBy: "updatedBy",
	}
}

func (k Keys) withDefaults() Keys {
	defaults := DefaultKeys()
	if strings.TrimSpace(k.LocalModifiedAt) == "" {
		k.LocalModifiedAt = defaults.LocalModifiedAt
	}
	if strings.TrimSpace(k.ServerUpdatedAt) == "" {
		k.ServerUpdatedAt = defaults.ServerUpdatedAt
	}
	if strings.TrimSpace(k.ServerUpdatedBy) == "" {
		k.ServerUpdatedBy = defaults.ServerUpdatedBy
	}
	return k
}

// Ribbon tells the user that a server change replaced their local edit.
type Ribbon struct {
	UpdatedBy string    `json:"updatedBy"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Resolution is the outcome of comparing a local and a server copy.
type Resolution struct {
	Source   Source  `json:"source"`
	Merged   Entity  `json:"merged"`
	Conflict bool    `json:"conflict"`
	Ribbon   *Ribbon `json:"ribbon,omitempty"`
}

// Resolve picks the surviving copy of an entity by comparing the local
// modification instant with the server update instant. It fails only when a
// timestamp is missing or unparseable.
func Resolve(local, server Entity, keys Keys) (Resolution, error) {
	keys = keys.withDefaults()

	localAt, err := Instant(local[keys.LocalModifiedAt])
	if err != nil {
		return Resolution{}, fmt.Errorf("local %s: %w", keys.LocalModifiedAt, err)
	}
	serverAt, err := Instant(server[keys.ServerUpdatedAt])
	if err != nil {
		return Resolution{}, fmt.Errorf("server %s: %w", keys.ServerUpdatedAt, err)
	}

	switch {
	case serverAt.After(localAt):
		return Resolution{
			Source:   SourceServer,
			Merged:   maps.Clone(server),
			Conflict: true,
			Ribbon: &Ribbon{
				UpdatedBy: author(server[keys.ServerUpdatedBy]),
				UpdatedAt: serverAt,
			},
		}, nil
	case localAt.After(serverAt):
		return Resolution{Source: SourceLocal, Merged: maps.Clone(local), Conflict: true}, nil
	default:
		return Resolution{Source: SourceServer, Merged: maps.Clone(server)}, nil
	}
}

func author(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
