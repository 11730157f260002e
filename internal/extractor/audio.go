// Package extractor pulls the audio track out of a video container with ffmpeg.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"accent-analyzer-go/internal/logger"
	"accent-analyzer-go/internal/types"
)

// wavHeaderSize is the size of a RIFF/WAVE header with no samples after it.
const wavHeaderSize = 44

// CommandResult is the captured outcome of one process run.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner abstracts process execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
}

// ExecRunner executes commands via os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

type Extractor struct {
	ffmpegPath string
	runner     CommandRunner
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	remove     func(string) error
	log        *logger.Logger
}

func New(ffmpegPath string, log *logger.Logger) *Extractor {
	return NewWithRunner(ffmpegPath, ExecRunner{}, exec.LookPath, log)
}

// NewWithRunner builds an extractor with injectable process dependencies.
func NewWithRunner(ffmpegPath string, runner CommandRunner, lookPath func(string) (string, error), log *logger.Logger) *Extractor {
	if log == nil {
		log = logger.New()
	}
	return &Extractor{
		ffmpegPath: ffmpegPath,
		runner:     runner,
		lookPath:   lookPath,
		stat:       os.Stat,
		remove:     os.Remove,
		log:        log.WithComponent("extractor"),
	}
}

// CheckAvailable verifies ffmpeg resolves on PATH and answers -version.
func (e *Extractor) CheckAvailable(ctx context.Context) error {
	path, err := e.lookPath(e.ffmpegPath)
	if err != nil {
		return types.NewError(types.ErrPrerequisiteMissing, err,
			"%s is not installed or not found in PATH", e.ffmpegPath)
	}
	res, err := e.runner.Run(ctx, path, "-version")
	if err != nil {
		return types.NewError(types.ErrPrerequisiteMissing, err,
			"%s -version failed (exit %d): %s", path, res.ExitCode, lastLine(res.Stderr))
	}
	e.log.WithField("ffmpeg", path).Debug("ffmpeg available")
	return nil
}

// Extract writes the first audio track of media to dst as 16 kHz mono PCM WAV.
// dst is removed again if extraction fails.
func (e *Extractor) Extract(ctx context.Context, media types.RetrievedMedia, dst string) (types.ExtractedAudio, error) {
	log := e.log.WithFields(logrus.Fields{"input": media.Path, "output": dst})

	if _, err := e.stat(media.Path); err != nil {
		return types.ExtractedAudio{}, types.NewError(types.ErrExtraction, err, "video file not found: %s", media.Path)
	}

	args := BuildArgs(media.Path, dst)
	res, err := e.runner.Run(ctx, e.ffmpegPath, args...)
	if err != nil {
		e.discard(dst)
		log.WithFields(logrus.Fields{"exit_code": res.ExitCode, "stderr": lastLine(res.Stderr)}).Error("ffmpeg failed")
		return types.ExtractedAudio{}, types.NewError(types.ErrExtraction, err,
			"ffmpeg audio extraction failed (exit %d): %s", res.ExitCode, lastLine(res.Stderr))
	}

	info, err := e.stat(dst)
	if err != nil {
		return types.ExtractedAudio{}, types.NewError(types.ErrExtraction, err, "ffmpeg completed but audio file is missing")
	}
	if info.Size() <= wavHeaderSize {
		e.discard(dst)
		return types.ExtractedAudio{}, types.NewError(types.ErrExtraction, nil, "video has no audio samples")
	}

	log.WithField("size", humanize.Bytes(uint64(info.Size()))).Info("audio extracted")
	return types.ExtractedAudio{Path: dst, Size: info.Size()}, nil
}

func (e *Extractor) discard(path string) {
	if err := e.remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		e.log.WithError(err).WithField("path", path).Warn("failed to remove partial audio")
	}
}

// BuildArgs builds the ffmpeg arguments for WAV extraction. The explicit map
// makes ffmpeg fail on containers with no audio stream.
func BuildArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-y",
		"-i", inputPath,
		"-map", "0:a:0",
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		"-f", "wav",
		outPath,
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	if s == "" {
		return "no output"
	}
	return fmt.Sprintf("%.300s", s)
}
