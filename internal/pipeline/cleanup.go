package pipeline

import (
	"errors"
	"os"

	"accent-analyzer-go/internal/logger"
)

// artifacts tracks every file a run creates. Paths are registered before the
// producing stage starts, so partial output is released too.
type artifacts struct {
	log    *logger.Logger
	remove func(string) error
	paths  []tracked
}

type tracked struct {
	name string
	path string
}

func (a *artifacts) track(name, path string) {
	a.paths = append(a.paths, tracked{name: name, path: path})
}

// releaseAll removes artifacts newest first. A failed removal is logged and
// does not stop the rest.
func (a *artifacts) releaseAll() {
	for i := len(a.paths) - 1; i >= 0; i-- {
		t := a.paths[i]
		err := a.remove(t.path)
		switch {
		case err == nil:
			a.log.WithField("artifact", t.name).WithField("path", t.path).Debug("artifact removed")
		case errors.Is(err, os.ErrNotExist):
		default:
			a.log.WithError(err).WithField("artifact", t.name).WithField("path", t.path).Warn("failed to remove artifact")
		}
	}
	a.paths = nil
}
