package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/cleancredit/internal/dirtiness"
	"github.com/sells-group/cleancredit/internal/model"
)

// FileStore keeps observations in a JSON (or .yaml/.yml) file and appends
// reward events as JSON lines to a sibling rewards.jsonl.
type FileStore struct {
	path        string
	rewardsPath string
	mu          sync.Mutex
}

// NewFile creates a FileStore for the given observation file path.
func NewFile(path string) *FileStore {
	return &FileStore{
		path:        path,
		rewardsPath: filepath.Join(filepath.Dir(path), "rewards.jsonl"),
	}
}

// Path returns the observation file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(s.path))
	return ext == ".yaml" || ext == ".yml"
}

// Migrate creates the parent directory.
func (s *FileStore) Migrate(_ context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return eris.Wrap(err, "file: create data dir")
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) LoadObservations(_ context.Context) ([]dirtiness.Observation, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoObservationSet
		}
		return nil, eris.Wrapf(err, "file: read %s", s.path)
	}

	var obs []dirtiness.Observation
	if s.isYAML() {
		err = yaml.Unmarshal(data, &obs)
	} else {
		err = json.Unmarshal(data, &obs)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "file: decode %s", s.path)
	}
	return obs, nil
}

// SaveObservations writes the set to a temp file and renames it over the
// target so readers and watchers never see a partial file.
func (s *FileStore) SaveObservations(_ context.Context, obs []dirtiness.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		data []byte
		err  error
	)
	if s.isYAML() {
		data, err = yaml.Marshal(obs)
	} else {
		data, err = json.MarshalIndent(obs, "", "  ")
	}
	if err != nil {
		return eris.Wrap(err, "file: encode observations")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return eris.Wrap(err, "file: create data dir")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "file: write %s", tmp)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return eris.Wrapf(err, "file: rename %s", tmp)
	}
	return nil
}

func (s *FileStore) RecordReward(_ context.Context, ev *model.RewardEvent) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "file: encode reward event")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.rewardsPath), 0o755); err != nil {
		return eris.Wrap(err, "file: create data dir")
	}
	f, err := os.OpenFile(s.rewardsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "file: open %s", s.rewardsPath)
	}
	defer f.Close() //nolint:errcheck

	if _, err := f.Write(append(line, '\n')); err != nil {
		return eris.Wrap(err, "file: append reward event")
	}
	return nil
}

// ListRewards returns events newest first.
func (s *FileStore) ListRewards(_ context.Context, filter model.RewardFilter) ([]model.RewardEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.rewardsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "file: open %s", s.rewardsPath)
	}
	defer f.Close() //nolint:errcheck

	var events []model.RewardEvent
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var ev model.RewardEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			return nil, eris.Wrap(err, "file: decode reward event")
		}
		if filter.Citizen != "" && ev.Citizen != filter.Citizen {
			continue
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "file: scan rewards")
	}

	slices.Reverse(events)
	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[:filter.Limit]
	}
	return events, nil
}
