package model

import (
	"encoding/json"
	"time"
)

// EventType is the kind of transition observed for a watched path
type EventType string

const (
	EventAdded    EventType = "added"
	EventModified EventType = "modified"
	EventRemoved  EventType = "removed"
)

// Valid reports whether t is one of the three known event types
func (t EventType) Valid() bool {
	switch t {
	case EventAdded, EventModified, EventRemoved:
		return true
	}
	return false
}

// DiffOpKind is the discriminator of a DiffOp
type DiffOpKind string

const (
	OpAdd    DiffOpKind = "add"
	OpRemove DiffOpKind = "remove"
	OpModify DiffOpKind = "modify"
)

// DiffOp describes one changed leaf. Which value fields are set depends on Op:
// add -> Added, remove -> Removed, modify -> From and To.
type DiffOp struct {
	Op      DiffOpKind
	Key     string
	From    Value
	To      Value
	Added   Value
	Removed Value
}

func NewAdd(key string, added Value) DiffOp {
	return DiffOp{Op: OpAdd, Key: key, Added: added}
}

func NewRemove(key string, removed Value) DiffOp {
	return DiffOp{Op: OpRemove, Key: key, Removed: removed}
}

func NewModify(key string, from, to Value) DiffOp {
	return DiffOp{Op: OpModify, Key: key, From: from, To: to}
}

// MarshalJSON emits only the fields that belong to the op
func (d DiffOp) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"op":  d.Op,
		"key": d.Key,
	}
	switch d.Op {
	case OpAdd:
		out["added"] = d.Added
	case OpRemove:
		out["removed"] = d.Removed
	case OpModify:
		out["from"] = d.From
		out["to"] = d.To
	}
	return json.Marshal(out)
}

// VersionRef points a change event at a stored version
type VersionRef struct {
	Path string    `json:"path"`
	Time time.Time `json:"time"`
}

// ChangeEvent is one immutable record of an observed transition.
// A nil Diff means one side of the comparison was unavailable; an empty, non-nil
// Diff means nothing changed. A non-empty Error marks a degraded record.
type ChangeEvent struct {
	ID      string      `json:"id"`
	Path    string      `json:"path"`
	Type    EventType   `json:"type"`
	Time    time.Time   `json:"time"`
	Prev    *VersionRef `json:"prev"`
	Current *VersionRef `json:"current"`
	Diff    []DiffOp    `json:"diff"`
	Error   string      `json:"error,omitempty"`
}

// IsError reports whether the record is a degraded error record
func (e *ChangeEvent) IsError() bool {
	return e.Error != ""
}

// VersionPaths returns the version files the event references
func (e *ChangeEvent) VersionPaths() []string {
	paths := make([]string, 0, 2)
	if e.Prev != nil {
		paths = append(paths, e.Prev.Path)
	}
	if e.Current != nil {
		paths = append(paths, e.Current.Path)
	}
	return paths
}

// Age returns the timestamp retention is measured against: the captured
// version time, or for removed events the time of the last version seen.
// Degraded records carry no versions and age by the time they were recorded.
func (e *ChangeEvent) Age() time.Time {
	if e.IsError() {
		return e.Time
	}
	if e.Current != nil {
		return e.Current.Time
	}
	if e.Prev != nil {
		return e.Prev.Time
	}
	return e.Time
}

// Version is one stored snapshot of a watched path
type Version struct {
	SystemPath string    `json:"systemPath"`
	Path       string    `json:"path"`
	Time       time.Time `json:"time"`
}

// Ref converts the version into the pointer stored on change events
func (v *Version) Ref() *VersionRef {
	return &VersionRef{Path: v.Path, Time: v.Time}
}

// PruneResult summarizes one retention pass
type PruneResult struct {
	EventsDeleted   int `json:"eventsDeleted"`
	VersionsDeleted int `json:"versionsDeleted"`
}

// VersionView is a parsed stored version with the events that reference it
type VersionView struct {
	Version *Version       `json:"version"`
	Data    Value          `json:"data"`
	Leaves  []Leaf         `json:"leaves"`
	Seen    []*ChangeEvent `json:"seen"`
}
