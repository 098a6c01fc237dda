package pipeline

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/askiada/databrew/pkg/pipeline/model"
	"github.com/askiada/databrew/pkg/pipeline/record"
	"github.com/askiada/databrew/pkg/pipeline/tape"
)

// ListFiles recursively enumerates a directory, optionally filtered by a
// glob pattern matched against each file's base name, and emits path
// strings in deterministic lexicographic order: directory iteration order
// is not guaranteed stable, so the collected paths are sorted before
// anything is emitted.
func ListFiles(root string, pattern string) Builder {
	return newRootBuilder("list_files", model.RootStepType, func(env *buildEnv, info *model.StepInfo) (Source, error) {
		paths, err := walkSorted(root, pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "list_files: unable to enumerate %s", root)
		}
		return &listFilesSource{
			opBase: opBase{env: env, info: info},
			paths:  paths,
		}, nil
	})
}

func walkSorted(root, pattern string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if pattern != "" {
			matched, err := filepath.Match(pattern, d.Name())
			if err != nil {
				return err
			}
			if !matched {
				return nil
			}
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

type listFilesSource struct {
	opBase
	paths []string
	idx   int
}

func (s *listFilesSource) Next(_ context.Context) (record.Value, bool, error) {
	return s.timed(func() (record.Value, bool, error) {
		if s.idx >= len(s.paths) {
			return record.Value{}, false, nil
		}
		v := record.String(s.paths[s.idx])
		s.idx++
		return v, true, nil
	})
}

func (s *listFilesSource) Reset() error {
	s.idx = 0
	return nil
}

func (s *listFilesSource) RecordPosition(t *tape.Tape) error {
	writeOpTag(t, tagListFiles)
	tape.WritePrimitive[int64](t, int64(s.idx))
	return nil
}

func (s *listFilesSource) ReloadPosition(t *tape.Tape) error {
	if err := expectOpTag(t, tagListFiles); err != nil {
		return err
	}
	idx, err := tape.ReadPrimitive[int64](t)
	if err != nil {
		return err
	}
	if idx < 0 || int(idx) > len(s.paths) {
		return ErrCorruptedCheckpoint
	}
	s.idx = int(idx)
	return nil
}
