// Package model defines the mirrored entity kinds, the local schema each kind
// is stored with, and the plain types passed between the remote client, the
// store and the synchronizer.
package model

import (
	"strings"

	syncerrors "github.com/randalmurphal/tasksync/internal/errors"
)

// Kind identifies a mirrored entity kind.
type Kind string

const (
	KindWorkspace  Kind = "workspace"
	KindUser       Kind = "user"
	KindTag        Kind = "tag"
	KindTeam       Kind = "team"
	KindProject    Kind = "project"
	KindTask       Kind = "task"
	KindStory      Kind = "story"
	KindAttachment Kind = "attachment"
)

// AllKinds lists every synced kind in dependency order.
var AllKinds = []Kind{
	KindWorkspace,
	KindUser,
	KindTag,
	KindTeam,
	KindProject,
	KindTask,
	KindStory,
	KindAttachment,
}

// ParseKind resolves a case-insensitive kind name.
func ParseKind(name string) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, k := range AllKinds {
		if string(k) == n {
			return k, nil
		}
	}
	return "", syncerrors.ErrKindUnknown(name)
}

// KindSet is the set of kinds included in a run.
type KindSet map[Kind]bool

// Has reports whether k is included.
func (s KindSet) Has(k Kind) bool {
	return s[k]
}

// Names returns the included kinds in AllKinds order.
func (s KindSet) Names() []string {
	var names []string
	for _, k := range AllKinds {
		if s[k] {
			names = append(names, string(k))
		}
	}
	return names
}

// SelectKinds builds the included kind set. An empty include list means every
// kind; an unknown include name is an error. Unknown exclude names are ignored.
func SelectKinds(include, exclude []string) (KindSet, error) {
	set := make(KindSet)
	if len(include) == 0 {
		for _, k := range AllKinds {
			set[k] = true
		}
	} else {
		for _, name := range include {
			k, err := ParseKind(name)
			if err != nil {
				return nil, err
			}
			set[k] = true
		}
	}
	for _, name := range exclude {
		if k, err := ParseKind(name); err == nil {
			delete(set, k)
		}
	}
	return set, nil
}
