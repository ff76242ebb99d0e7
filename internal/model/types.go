package model

import "time"

// Payload is a remote object as decoded from the API: field name to value.
type Payload map[string]any

// GID returns the payload's remote id, or "" when absent.
func (p Payload) GID() string {
	s, _ := p["gid"].(string)
	return s
}

// Name returns the payload's name, or "" when absent.
func (p Payload) Name() string {
	s, _ := p["name"].(string)
	return s
}

// Ref pops field from p and returns it as a compact reference. Missing or
// null references return nil.
func (p Payload) Ref(field string) *Ref {
	v, ok := p[field]
	delete(p, field)
	if !ok {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	ref := RefFromMap(m)
	if ref.GID == "" {
		return nil
	}
	return &ref
}

// Refs pops field from p and returns its compact references.
func (p Payload) Refs(field string) []Ref {
	v, ok := p[field]
	delete(p, field)
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	refs := make([]Ref, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if ref := RefFromMap(m); ref.GID != "" {
			refs = append(refs, ref)
		}
	}
	return refs
}

// Ref is the compact form of a remote object found in listings and nested
// references: just its remote id and display name.
type Ref struct {
	GID  string `json:"gid"`
	Name string `json:"name,omitempty"`
}

// RefFromMap converts a decoded compact object into a Ref.
func RefFromMap(m map[string]any) Ref {
	gid, _ := m["gid"].(string)
	name, _ := m["name"].(string)
	return Ref{GID: gid, Name: name}
}

// GIDs returns the remote ids of refs.
func GIDs(refs []Ref) []string {
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.GID
	}
	return ids
}

// Row is a local mirror row.
type Row struct {
	Kind     Kind
	ID       int64
	RemoteID string // "" when the row has no remote id
	Fields   map[string]any
}

// Query selects rows of Kind linked to RelatedID through Relation.
// An empty Relation selects every row of Kind.
type Query struct {
	Kind      Kind
	Relation  string
	RelatedID int64
}

// Event actions and resource types reported by the remote event feed.
const (
	ActionRemoved = "removed"

	EventProject = "project"
	EventTask    = "task"
	EventStory   = "story"
)

// Event is one entry of a project's change feed.
type Event struct {
	Type     string
	Action   string
	Resource Ref
	Parent   *Ref
}

// EventPage is one response of the change feed.
type EventPage struct {
	Events  []Event
	Cursor  string // cursor to resume from after these events
	HasMore bool
}

// Webhook is the local record of a remote push subscription.
type Webhook struct {
	ID        int64
	ProjectID string // project remote id
	RemoteID  string
	Secret    string
	CreatedAt time.Time
}

// RemoteWebhook is a push subscription as reported by the remote side.
type RemoteWebhook struct {
	GID    string
	Active bool
	Target string
	// Secret is only known for a subscription this run created.
	Secret string
}
