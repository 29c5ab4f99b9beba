// Package backup stores zipped world snapshots in a pluggable backend and
// runs all backend I/O on a dedicated executor.
package backup

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/EinBexiii/dragonfly-buildsystem/pkg/world"
)

// Profile is the world a backup belongs to. Backups are keyed by ID, never
// by name, so renames do not detach them.
type Profile struct {
	ID   uuid.UUID
	Name string
}

func ProfileOf(w *world.BuildWorld) Profile {
	return Profile{ID: w.UniqueID(), Name: w.Name()}
}

type Backup struct {
	Profile Profile
	// CreationTime is in milliseconds since the Unix epoch.
	CreationTime int64
	// Key locates the backup inside its backend: an absolute path for local
	// and SFTP storage, an object key for S3.
	Key string
}

func (b Backup) Created() time.Time { return time.UnixMilli(b.CreationTime) }

// Snapshot is a zipped world on local disk, waiting to be stored.
type Snapshot struct {
	Path    string
	Created time.Time
}

// Storage is a backup backend. Every method may block on disk or network
// I/O and must not be called from the scheduler goroutine.
type Storage interface {
	// Name identifies the backend in logs and errors.
	Name() string
	// ListBackups returns the backups of p newest first. A profile without
	// backups yields an empty list.
	ListBackups(ctx context.Context, p Profile) ([]Backup, error)
	StoreBackup(ctx context.Context, p Profile, s Snapshot) (Backup, error)
	// DownloadBackup makes the backup available as a local file and returns
	// its path. Temporary returns whether the caller owns the file.
	DownloadBackup(ctx context.Context, b Backup) (path string, temporary bool, err error)
	// DeleteBackup succeeds for backups that are already gone.
	DeleteBackup(ctx context.Context, b Backup) error
	Close() error
}

// FileName is the deterministic name of a backup created at t.
func FileName(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10) + ".zip"
}

// ParseFileName extracts the creation time from a backup file name.
func ParseFileName(name string) (int64, bool) {
	stem, ok := strings.CutSuffix(name, ".zip")
	if !ok {
		return 0, false
	}
	ms, err := strconv.ParseInt(stem, 10, 64)
	if err != nil || ms < 0 {
		return 0, false
	}
	return ms, true
}

func SortNewestFirst(backups []Backup) {
	slices.SortFunc(backups, func(a, b Backup) int {
		switch {
		case a.CreationTime > b.CreationTime:
			return -1
		case a.CreationTime < b.CreationTime:
			return 1
		default:
			return strings.Compare(a.Key, b.Key)
		}
	})
}

func (p Profile) String() string {
	return fmt.Sprintf("%s (%s)", p.Name, p.ID)
}
