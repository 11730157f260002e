// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"accent-analyzer-go/internal/classifier"
	"accent-analyzer-go/internal/logger"
	"accent-analyzer-go/internal/source"
	"accent-analyzer-go/internal/transcription"
	"accent-analyzer-go/internal/types"
)

type State string

const (
	Idle              State = "idle"
	PrerequisiteCheck State = "prerequisite_check"
	Acquiring         State = "acquiring"
	Extracting        State = "extracting"
	Transcribing      State = "transcribing"
	Classifying       State = "classifying"
	Done              State = "done"
	Failed            State = "failed"
)

const lockFileName = ".accent-analyzer.lock"

// Summary is attached to every successful result.
const Summary = "The audio was transcribed to confirm English speech, and the accent was classified " +
	"using the ECAPA-TDNN model trained on the CommonAccent dataset, supporting 16 English accents."

// Fetcher downloads a resolved remote source to dst.
type Fetcher interface {
	Fetch(ctx context.Context, ref types.SourceReference, dst string) (types.RetrievedMedia, error)
}

// AudioExtractor is the demux capability.
type AudioExtractor interface {
	CheckAvailable(ctx context.Context) error
	Extract(ctx context.Context, media types.RetrievedMedia, dst string) (types.ExtractedAudio, error)
}

type Deps struct {
	Fetcher     Fetcher
	Extractor   AudioExtractor
	Transcriber transcription.Transcriber
	Classifier  classifier.Classifier
	WorkDir     string
	Log         *logger.Logger
	// OnStage, if set, observes every state the run enters.
	OnStage func(State)
}

// Analyzer runs one analysis at a time per process and per work directory.
type Analyzer struct {
	deps   Deps
	log    *logger.Logger
	mu     sync.Mutex
	lock   *flock.Flock
	remove func(string) error
	stat   func(string) (os.FileInfo, error)
	newID  func() string
}

func New(d Deps) *Analyzer {
	if d.Log == nil {
		d.Log = logger.New()
	}
	return &Analyzer{
		deps:   d,
		log:    d.Log.WithComponent("pipeline"),
		lock:   flock.New(filepath.Join(d.WorkDir, lockFileName)),
		remove: os.Remove,
		stat:   os.Stat,
		newID:  uuid.NewString,
	}
}

// WorkDir is where run artifacts and uploads live.
func (a *Analyzer) WorkDir() string {
	return a.deps.WorkDir
}

// run carries the mutable state of one Analyze call.
type run struct {
	id        string
	state     State
	log       *logrus.Entry
	artifacts *artifacts
}

// Analyze takes src through every stage and returns the terminal result. No
// file created by the run survives the return, whatever the outcome. Local
// sources are owned by the run and are deleted too.
func (a *Analyzer) Analyze(ctx context.Context, src types.SourceReference) types.PipelineResult {
	start := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()

	r := &run{
		id:    a.newID(),
		state: Idle,
		artifacts: &artifacts{
			log:    a.log,
			remove: a.remove,
		},
	}
	r.log = a.log.WithFields(logrus.Fields{"run_id": r.id, "source_kind": src.Kind})
	defer r.artifacts.releaseAll()

	if src.Kind == types.SourceLocal {
		r.artifacts.track("upload", src.LocalPath)
	}

	cls, err := a.execute(ctx, r, src)
	var res types.PipelineResult
	if err != nil {
		failedAt := r.state
		a.enter(r, Failed)
		res.Failure = failure(failedAt, err)
		r.log.WithFields(logrus.Fields{"stage": failedAt, "kind": res.Failure.Kind}).
			WithField("error", err.Error()).Error("analysis failed")
	} else {
		a.enter(r, Done)
		res.Classification = &cls
		res.Summary = Summary
		r.log.WithFields(logrus.Fields{"accent": cls.Accent, "confidence": cls.Confidence}).Info("analysis complete")
	}
	res.Duration = time.Since(start)
	return res
}

func (a *Analyzer) execute(ctx context.Context, r *run, src types.SourceReference) (types.AccentClassification, error) {
	a.enter(r, PrerequisiteCheck)
	if err := a.deps.Extractor.CheckAvailable(ctx); err != nil {
		return types.AccentClassification{}, err
	}
	unlock, err := a.lockWorkDir(ctx)
	if err != nil {
		return types.AccentClassification{}, err
	}
	defer unlock()
	defer r.artifacts.releaseAll()

	a.enter(r, Acquiring)
	media, err := a.acquire(ctx, r, src)
	if err != nil {
		return types.AccentClassification{}, err
	}

	a.enter(r, Extracting)
	audioPath := filepath.Join(a.deps.WorkDir, r.id+"-audio.wav")
	r.artifacts.track("audio", audioPath)
	audio, err := a.deps.Extractor.Extract(ctx, media, audioPath)
	if err != nil {
		return types.AccentClassification{}, err
	}
	if err := a.requirePresent(audio.Path, types.ErrExtraction); err != nil {
		return types.AccentClassification{}, err
	}

	a.enter(r, Transcribing)
	if _, err := transcription.Gate(ctx, a.deps.Transcriber, audio, a.deps.Log); err != nil {
		return types.AccentClassification{}, err
	}

	a.enter(r, Classifying)
	return classifier.Classify(ctx, a.deps.Classifier, audio, a.deps.Log)
}

func (a *Analyzer) acquire(ctx context.Context, r *run, src types.SourceReference) (types.RetrievedMedia, error) {
	switch src.Kind {
	case types.SourceLocal:
		info, err := a.stat(src.LocalPath)
		if err != nil || info.IsDir() {
			return types.RetrievedMedia{}, types.NewError(types.ErrInvalidSource, err, "uploaded file not found: %s", src.LocalPath)
		}
		return types.RetrievedMedia{Path: src.LocalPath, Size: info.Size(), Origin: src}, nil
	case types.SourceRemote:
		ref, err := source.Resolve(src.RawURL)
		if err != nil {
			return types.RetrievedMedia{}, err
		}
		dst := filepath.Join(a.deps.WorkDir, r.id+"-media.mp4")
		r.artifacts.track("media", dst)
		media, err := a.deps.Fetcher.Fetch(ctx, ref, dst)
		if err != nil {
			return types.RetrievedMedia{}, err
		}
		if err := a.requirePresent(media.Path, types.ErrDownload); err != nil {
			return types.RetrievedMedia{}, err
		}
		return media, nil
	default:
		return types.RetrievedMedia{}, types.NewError(types.ErrInvalidSource, nil, "please provide a valid video URL or upload a file")
	}
}

// lockWorkDir creates the work directory and takes its advisory lock so two
// processes sharing it never interleave runs.
func (a *Analyzer) lockWorkDir(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(a.deps.WorkDir, 0o755); err != nil {
		return nil, types.NewError(types.ErrPrerequisiteMissing, err, "work directory %s is not writable", a.deps.WorkDir)
	}
	ok, err := a.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil || !ok {
		if err == nil {
			err = errors.New("lock not acquired")
		}
		return nil, types.NewError(types.ErrPrerequisiteMissing, err, "cannot lock work directory %s", a.deps.WorkDir)
	}
	return func() {
		if err := a.lock.Unlock(); err != nil {
			a.log.WithError(err).Warn("failed to release work directory lock")
		}
	}, nil
}

func (a *Analyzer) requirePresent(path string, kind types.ErrorKind) error {
	if _, err := a.stat(path); err != nil {
		return types.NewError(kind, err, "expected artifact missing: %s", path)
	}
	return nil
}

func (a *Analyzer) enter(r *run, s State) {
	r.state = s
	r.log.WithField("state", s).Debug("state entered")
	if a.deps.OnStage != nil {
		a.deps.OnStage(s)
	}
}

// stageKinds is the error kind reported for a stage when a collaborator
// returned something other than an AnalysisError.
var stageKinds = map[State]types.ErrorKind{
	PrerequisiteCheck: types.ErrPrerequisiteMissing,
	Acquiring:         types.ErrDownload,
	Extracting:        types.ErrExtraction,
	Transcribing:      types.ErrTranscription,
	Classifying:       types.ErrClassification,
}

func failure(stage State, err error) *types.Failure {
	kind := types.KindOf(err)
	if kind == "" {
		kind = stageKinds[stage]
	}
	return &types.Failure{
		Kind:    kind,
		Stage:   string(stage),
		Message: fmt.Sprint(err),
	}
}
