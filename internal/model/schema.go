package model

// Table is the local table name for each kind.
var Table = map[Kind]string{
	KindWorkspace:  "workspaces",
	KindUser:       "users",
	KindTag:        "tags",
	KindTeam:       "teams",
	KindProject:    "projects",
	KindTask:       "tasks",
	KindStory:      "stories",
	KindAttachment: "attachments",
}

// Fields is the local schema: the payload field names each kind stores,
// besides the local id and remote_id. Column order is the order listed.
var Fields = map[Kind][]string{
	KindWorkspace: {"name", "is_organization"},
	KindUser:      {"name", "email", "photo"},
	KindTag:       {"name", "color", "notes", "created_at", "workspace_id"},
	KindTeam:      {"name", "description", "html_description", "permalink_url", "organization_id", "organization_name"},
	KindProject: {
		"name", "archived", "color", "notes", "html_notes", "public", "created_at", "modified_at",
		"due_on", "start_on", "permalink_url", "owner_id", "team_id", "workspace_id",
	},
	KindTask: {
		"name", "notes", "html_notes", "completed", "completed_at", "created_at", "modified_at",
		"due_on", "due_at", "start_on", "assignee_id", "assignee_status", "parent_id",
		"num_hearts", "resource_subtype", "permalink_url",
	},
	KindStory:      {"text", "html_text", "type", "resource_subtype", "source", "created_at", "created_by_id", "target_id"},
	KindAttachment: {"name", "host", "created_at", "download_url", "view_url", "permanent_url", "parent_id"},
}

// HasField reports whether kind k stores field name.
func HasField(k Kind, name string) bool {
	for _, f := range Fields[k] {
		if f == name {
			return true
		}
	}
	return false
}

// Relation describes a many-to-many link table between two kinds.
type Relation struct {
	Table        string
	OwnerColumn  string
	TargetColumn string
	Target       Kind
}

// Relations lists the link tables reachable from each owning kind.
var Relations = map[Kind]map[string]Relation{
	KindUser: {
		"workspaces": {Table: "user_workspaces", OwnerColumn: "user_id", TargetColumn: "workspace_id", Target: KindWorkspace},
	},
	KindTag: {
		"followers": {Table: "tag_followers", OwnerColumn: "tag_id", TargetColumn: "user_id", Target: KindUser},
	},
	KindTask: {
		"projects":     {Table: "task_projects", OwnerColumn: "task_id", TargetColumn: "project_id", Target: KindProject},
		"dependencies": {Table: "task_dependencies", OwnerColumn: "task_id", TargetColumn: "dependency_id", Target: KindTask},
		"tags":         {Table: "task_tags", OwnerColumn: "task_id", TargetColumn: "tag_id", Target: KindTag},
	},
}

// LookupRelation returns the relation named rel on kind k.
func LookupRelation(k Kind, rel string) (Relation, bool) {
	r, ok := Relations[k][rel]
	return r, ok
}
