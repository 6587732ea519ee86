package storage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"

	"github.com/ajkula/plistener/adapter/outbound/codec"
	"github.com/ajkula/plistener/domain/model"
	"github.com/ajkula/plistener/domain/port/outbound"
)

const changeExt = ".yml"

// implements ChangeRecorder with one yaml file per event in changesDir
type FileChangeRepository struct {
	changesDir string
	now        func() time.Time
	logger     outbound.Logger
	mu         sync.RWMutex
}

// persisted pointer to a version
type versionRecord struct {
	Path string    `yaml:"path"`
	Time time.Time `yaml:"time"`
}

// persisted shape of a full change event
type changeRecord struct {
	Path    string         `yaml:"path"`
	Type    string         `yaml:"type"`
	Time    time.Time      `yaml:"time"`
	Prev    *versionRecord `yaml:"prev"`
	Current *versionRecord `yaml:"current"`
	Diff    *yaml.Node     `yaml:"diff"`
}

// persisted shape of a degraded record
type errorRecord struct {
	Path  string    `yaml:"path"`
	Type  string    `yaml:"type"`
	Time  time.Time `yaml:"time"`
	Error string    `yaml:"error"`
}

// union used when reading, so both shapes decode
type storedRecord struct {
	Path    string         `yaml:"path"`
	Type    string         `yaml:"type"`
	Time    time.Time      `yaml:"time"`
	Prev    *versionRecord `yaml:"prev"`
	Current *versionRecord `yaml:"current"`
	Diff    yaml.Node      `yaml:"diff"`
	Error   string         `yaml:"error"`
}

// creates a change repository; a nil clock means time.Now
func NewFileChangeRepository(changesDir string, clock func() time.Time, logger outbound.Logger) (*FileChangeRepository, error) {
	if err := os.MkdirAll(changesDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create changes directory: %w", err)
	}
	if clock == nil {
		clock = time.Now
	}

	return &FileChangeRepository{
		changesDir: changesDir,
		now:        clock,
		logger:     logger,
	}, nil
}

// ChangeID derives the record identity: event time, a short hash of the
// system path (files sharing a basename in the same millisecond) and the basename
func ChangeID(t time.Time, systemPath string) string {
	sum := blake2b.Sum256([]byte(systemPath))
	return strings.Join([]string{
		FormatTime(t),
		hex.EncodeToString(sum[:])[:7],
		filepath.Base(systemPath),
	}, "_")
}

// returns the file a record with the given ID lives in
func (r *FileChangeRepository) ChangePath(id string) string {
	return filepath.Join(r.changesDir, id+changeExt)
}

func (r *FileChangeRepository) Record(
	systemPath string,
	eventType model.EventType,
	current, prev *model.VersionRef,
	diff []model.DiffOp,
) (*model.ChangeEvent, error) {
	event := &model.ChangeEvent{
		Path:    systemPath,
		Type:    eventType,
		Time:    Truncate(r.now()),
		Prev:    prev,
		Current: current,
		Diff:    diff,
	}

	record := changeRecord{
		Path:    event.Path,
		Type:    string(event.Type),
		Time:    event.Time,
		Prev:    toVersionRecord(prev),
		Current: toVersionRecord(current),
		Diff:    encodeDiff(diff),
	}

	if err := r.write(event, record); err != nil {
		return nil, err
	}

	r.logger.Info("Change recorded", "id", event.ID, "path", systemPath, "type", eventType, "ops", len(diff))
	return event, nil
}

func (r *FileChangeRepository) RecordError(systemPath string, eventType model.EventType, cause error) (*model.ChangeEvent, error) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}

	event := &model.ChangeEvent{
		Path:  systemPath,
		Type:  eventType,
		Time:  Truncate(r.now()),
		Error: msg,
	}

	record := errorRecord{
		Path:  event.Path,
		Type:  string(event.Type),
		Time:  event.Time,
		Error: msg,
	}

	if err := r.write(event, record); err != nil {
		return nil, err
	}

	r.logger.Warn("Change error recorded", "id", event.ID, "path", systemPath, "type", eventType, "error", msg)
	return event, nil
}

// assigns the event its ID and persists record under it. An existing file
// at that identity is a conflict, never overwritten.
func (r *FileChangeRepository) write(event *model.ChangeEvent, record any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	event.ID = ChangeID(event.Time, event.Path)
	changePath := r.ChangePath(event.ID)

	if _, err := os.Stat(changePath); err == nil {
		return &model.ChangePathConflictError{Path: changePath}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check change path %s: %w", changePath, err)
	}

	data, err := yaml.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode change %s: %w", event.ID, err)
	}

	if err := writeFileAtomic(changePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write change %s: %w", event.ID, err)
	}
	return nil
}

func (r *FileChangeRepository) List() ([]*model.ChangeEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := os.ReadDir(r.changesDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}

	events := make([]*model.ChangeEvent, 0, len(entries))
	for _, entry := range entries {
		id, ok := changeIDFromName(entry)
		if !ok {
			continue
		}

		event, err := r.load(id)
		if err != nil {
			r.logger.Warn("Skipping unreadable change record", "id", id, "error", err)
			continue
		}
		events = append(events, event)
	}

	return events, nil
}

func (r *FileChangeRepository) Get(id string) (*model.ChangeEvent, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: %s", model.ErrChangeNotFound, id)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.load(id)
}

func (r *FileChangeRepository) Delete(id string) error {
	if !validID(id) {
		return fmt.Errorf("%w: %s", model.ErrChangeNotFound, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.ChangePath(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", model.ErrChangeNotFound, id)
		}
		return fmt.Errorf("failed to delete change %s: %w", id, err)
	}
	return nil
}

// removes every record (and any stale temp file)
func (r *FileChangeRepository) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.changesDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to list changes: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		_, isChange := changeIDFromName(entry)
		if !isChange && !isTempName(entry.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(r.changesDir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete %s: %w", entry.Name(), err)
		}
		if isChange {
			removed++
		}
	}

	r.logger.Info("All changes removed", "count", removed)
	return nil
}

func (r *FileChangeRepository) load(id string) (*model.ChangeEvent, error) {
	data, err := os.ReadFile(r.ChangePath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", model.ErrChangeNotFound, id)
		}
		return nil, fmt.Errorf("failed to read change %s: %w", id, err)
	}

	event, err := DecodeChange(data)
	if err != nil {
		return nil, fmt.Errorf("change %s: %w", id, err)
	}
	event.ID = id
	return event, nil
}

// DecodeChange parses one persisted record, full or degraded
func DecodeChange(data []byte) (*model.ChangeEvent, error) {
	var rec storedRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode change record: %w", err)
	}

	event := &model.ChangeEvent{
		Path:    rec.Path,
		Type:    model.EventType(rec.Type),
		Time:    rec.Time,
		Prev:    fromVersionRecord(rec.Prev),
		Current: fromVersionRecord(rec.Current),
		Error:   rec.Error,
	}

	diff, err := decodeDiff(&rec.Diff)
	if err != nil {
		return nil, err
	}
	event.Diff = diff

	return event, nil
}

// EncodeChange renders an event in its persisted shape
func EncodeChange(event *model.ChangeEvent) ([]byte, error) {
	if event.IsError() {
		return yaml.Marshal(errorRecord{
			Path:  event.Path,
			Type:  string(event.Type),
			Time:  event.Time,
			Error: event.Error,
		})
	}
	return yaml.Marshal(changeRecord{
		Path:    event.Path,
		Type:    string(event.Type),
		Time:    event.Time,
		Prev:    toVersionRecord(event.Prev),
		Current: toVersionRecord(event.Current),
		Diff:    encodeDiff(event.Diff),
	})
}

func encodeDiff(diff []model.DiffOp) *yaml.Node {
	if diff == nil {
		return nil
	}

	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, op := range diff {
		m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		m.Content = append(m.Content, strNode("op"), strNode(string(op.Op)), strNode("key"), strNode(op.Key))
		switch op.Op {
		case model.OpAdd:
			m.Content = append(m.Content, strNode("added"), codec.ValueToNode(op.Added))
		case model.OpRemove:
			m.Content = append(m.Content, strNode("removed"), codec.ValueToNode(op.Removed))
		case model.OpModify:
			m.Content = append(m.Content,
				strNode("from"), codec.ValueToNode(op.From),
				strNode("to"), codec.ValueToNode(op.To),
			)
		}
		seq.Content = append(seq.Content, m)
	}
	return seq
}

func decodeDiff(n *yaml.Node) ([]model.DiffOp, error) {
	if n.Kind == 0 || (n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null") {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: diff is not a list", n.Line)
	}

	ops := make([]model.DiffOp, 0, len(n.Content))
	for i, item := range n.Content {
		if item.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("diff[%d]: not a map", i)
		}

		var op model.DiffOp
		for j := 0; j+1 < len(item.Content); j += 2 {
			key, valueNode := item.Content[j].Value, item.Content[j+1]
			switch key {
			case "op":
				op.Op = model.DiffOpKind(valueNode.Value)
			case "key":
				op.Key = valueNode.Value
			case "added", "removed", "from", "to":
				v, err := codec.NodeToValue(valueNode)
				if err != nil {
					return nil, fmt.Errorf("diff[%d].%s: %w", i, key, err)
				}
				switch key {
				case "added":
					op.Added = v
				case "removed":
					op.Removed = v
				case "from":
					op.From = v
				case "to":
					op.To = v
				}
			}
		}

		switch op.Op {
		case model.OpAdd, model.OpRemove, model.OpModify:
		default:
			return nil, fmt.Errorf("diff[%d]: unknown op %q", i, op.Op)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func strNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func toVersionRecord(ref *model.VersionRef) *versionRecord {
	if ref == nil {
		return nil
	}
	return &versionRecord{Path: ref.Path, Time: ref.Time}
}

func fromVersionRecord(rec *versionRecord) *model.VersionRef {
	if rec == nil {
		return nil
	}
	return &model.VersionRef{Path: rec.Path, Time: rec.Time}
}

func changeIDFromName(entry os.DirEntry) (string, bool) {
	name := entry.Name()
	if entry.IsDir() || isTempName(name) || !strings.HasSuffix(name, changeExt) {
		return "", false
	}
	return strings.TrimSuffix(name, changeExt), true
}

func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && id != "." && id != ".."
}
