package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"mysql-collector/internal/domain"
	"mysql-collector/internal/util"
)

// FileMode is the only mode a state file is ever left with.
const FileMode fs.FileMode = 0600

// Owner is the account a state file is handed to. -1 leaves a field as is.
type Owner struct {
	UID int
	GID int
}

// LookupOwner resolves a user name (and the group of the same name, falling
// back to the user's primary group) to numeric ids.
func LookupOwner(name string) (Owner, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return Owner{}, fmt.Errorf("lookup user %s: %w", name, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return Owner{}, fmt.Errorf("user %s has non-numeric uid %q", name, u.Uid)
	}
	gidStr := u.Gid
	if g, err := user.LookupGroup(name); err == nil {
		gidStr = g.Gid
	}
	gid, err := strconv.Atoi(gidStr)
	if err != nil {
		return Owner{}, fmt.Errorf("group of %s has non-numeric gid %q", name, gidStr)
	}
	return Owner{UID: uid, GID: gid}, nil
}

// FileStore persists the rate baseline in a single JSON file. The file holds
// the credentials-adjacent counters of the monitored server and is kept
// owner-only on every load and save.
type FileStore struct {
	path    string
	owner   Owner
	outputs []string
	logger  *util.MetricsLogger
	now     func() time.Time

	warnedChown bool
}

// NewFileStore returns a store for path. outputs are the rate names a fresh
// state is zero-filled with.
func NewFileStore(path string, owner Owner, outputs []string, logger *util.MetricsLogger) *FileStore {
	return &FileStore{
		path:    path,
		owner:   owner,
		outputs: outputs,
		logger:  logger,
		now:     time.Now,
	}
}

// NewFileStoreWithClock is NewFileStore with an explicit time source for the
// timestamp of a freshly created state.
func NewFileStoreWithClock(path string, owner Owner, outputs []string, logger *util.MetricsLogger, now func() time.Time) *FileStore {
	s := NewFileStore(path, owner, outputs, logger)
	s.now = now
	return s
}

func (s *FileStore) Path() string {
	return s.path
}

// Load reads the state file. A missing file is created with zero counters
// stamped with the current time. Unparsable content is a CorruptStateError.
func (s *FileStore) Load() (domain.PersistedState, error) {
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		st := domain.PersistedState{
			Version:    CurrentVersion,
			ObservedAt: domain.ObservationTime(s.now()),
			Counters:   make(map[string]uint64, len(s.outputs)),
		}
		for _, name := range s.outputs {
			st.Counters[name] = 0
		}
		if err := s.Save(st); err != nil {
			return domain.PersistedState{}, err
		}
		s.logger.LogFields(util.LOG_LEVEL_INFO, "created state file", zap.String("path", s.path))
		return st, nil
	} else if err != nil {
		return domain.PersistedState{}, fmt.Errorf("stat state file: %w", err)
	}

	if err := s.restrict(s.path); err != nil {
		return domain.PersistedState{}, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return domain.PersistedState{}, fmt.Errorf("read state file: %w", err)
	}
	st, err := decode(data, s.outputs)
	if err != nil {
		return domain.PersistedState{}, &domain.CorruptStateError{Path: s.path, Err: err}
	}
	return st, nil
}

// Save replaces the state file. The new content is written to a temporary
// file in the same directory and renamed over the old one, so readers see
// either the previous or the new state.
func (s *FileStore) Save(st domain.PersistedState) error {
	data, err := encode(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(FileMode); err != nil {
		return fmt.Errorf("chmod temp state file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := s.restrict(tmpName); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	committed = true

	return s.restrict(s.path)
}

// restrict hands path to the configured owner and sets mode 0600. Without
// the privilege to chown, the mode is still enforced and a warning logged.
func (s *FileStore) restrict(path string) error {
	if err := os.Chown(path, s.owner.UID, s.owner.GID); err != nil {
		if !errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("chown state file: %w", err)
		}
		if !s.warnedChown {
			s.warnedChown = true
			s.logger.LogFields(util.LOG_LEVEL_WARN, "cannot change state file owner",
				zap.String("path", path),
				zap.Int("uid", s.owner.UID),
				zap.Int("gid", s.owner.GID),
				zap.Error(err))
		}
	}
	if err := os.Chmod(path, FileMode); err != nil {
		return fmt.Errorf("chmod state file: %w", err)
	}
	return nil
}
