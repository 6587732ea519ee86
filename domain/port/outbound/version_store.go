package outbound

import (
	"time"

	"github.com/ajkula/plistener/domain/model"
)

// defines storage operations for file versions
type VersionStore interface {
	// RecordVersion copies the current bytes of systemPath into its versions dir
	RecordVersion(systemPath string) (*model.Version, error)

	// Last returns the version with the greatest capture time, nil if none
	Last(systemPath string) (*model.Version, error)

	// VersionPath computes where a version captured at t is stored
	VersionPath(t time.Time, systemPath string) string

	// CaptureTime returns the capture time RecordVersion would use right now
	CaptureTime(systemPath string) (time.Time, error)

	// Versions lists the stored versions of systemPath, oldest first
	Versions(systemPath string) ([]*model.Version, error)

	// Lookup resolves a stored version file back to its version
	Lookup(versionPath string) (*model.Version, error)

	// Delete removes one version file and its index entry
	Delete(versionPath string) error

	// Paths lists every system path with a versions directory
	Paths() ([]string, error)

	// Reset removes every stored version
	Reset() error
}

// defines storage operations for change events
type ChangeRecorder interface {
	// Record persists a full change event stamped with the current time
	Record(
		systemPath string,
		eventType model.EventType,
		current, prev *model.VersionRef,
		diff []model.DiffOp,
	) (*model.ChangeEvent, error)

	// RecordError persists a degraded record for a failed event
	RecordError(systemPath string, eventType model.EventType, cause error) (*model.ChangeEvent, error)

	// List returns every persisted record, in no particular order
	List() ([]*model.ChangeEvent, error)

	// Get fetches one record by ID
	Get(id string) (*model.ChangeEvent, error)

	// Delete removes one record by ID
	Delete(id string) error

	// Clear removes every record
	Clear() error
}
