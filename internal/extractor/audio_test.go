package extractor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"accent-analyzer-go/internal/logger"
	"accent-analyzer-go/internal/types"
)

// fakeRunner simulates command execution outcomes.
type fakeRunner struct {
	calls [][]string
	run   func(name string, args ...string) (CommandResult, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.run == nil {
		return CommandResult{}, nil
	}
	return f.run(name, args...)
}

func foundAt(path string) func(string) (string, error) {
	return func(string) (string, error) { return path, nil }
}

func mustWriteFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strings.Repeat("x", size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestCheckAvailableMissingBinary(t *testing.T) {
	runner := &fakeRunner{}
	lookPath := func(string) (string, error) { return "", errors.New("executable file not found in $PATH") }
	ex := NewWithRunner("ffmpeg", runner, lookPath, logger.Discard())

	err := ex.CheckAvailable(context.Background())
	if types.KindOf(err) != types.ErrPrerequisiteMissing {
		t.Fatalf("err = %v, want PrerequisiteMissingError", err)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("runner should not be called, got %v", runner.calls)
	}
}

func TestCheckAvailableVersionFails(t *testing.T) {
	runner := &fakeRunner{run: func(string, ...string) (CommandResult, error) {
		return CommandResult{ExitCode: 126, Stderr: "permission denied"}, errors.New("exit status 126")
	}}
	ex := NewWithRunner("ffmpeg", runner, foundAt("/usr/bin/ffmpeg"), logger.Discard())

	err := ex.CheckAvailable(context.Background())
	if types.KindOf(err) != types.ErrPrerequisiteMissing {
		t.Fatalf("err = %v, want PrerequisiteMissingError", err)
	}
	if got := runner.calls[0]; got[0] != "/usr/bin/ffmpeg" || got[1] != "-version" {
		t.Fatalf("unexpected call %v", got)
	}
}

func TestExtractSuccess(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "in.mp4")
	audio := filepath.Join(dir, "out.wav")
	mustWriteFile(t, video, 100)

	runner := &fakeRunner{run: func(name string, args ...string) (CommandResult, error) {
		mustWriteFile(t, args[len(args)-1], 2048)
		return CommandResult{}, nil
	}}
	ex := NewWithRunner("ffmpeg-custom", runner, foundAt("ffmpeg-custom"), logger.Discard())

	got, err := ex.Extract(context.Background(), types.RetrievedMedia{Path: video}, audio)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got.Path != audio || got.Size != 2048 {
		t.Fatalf("unexpected audio %#v", got)
	}
	call := runner.calls[0]
	if call[0] != "ffmpeg-custom" {
		t.Fatalf("command = %q", call[0])
	}
	joined := strings.Join(call, " ")
	for _, want := range []string{"-i " + video, "-map 0:a:0", "-c:a pcm_s16le", "-ar 16000"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args %q missing %q", joined, want)
		}
	}
}

func TestExtractFailureRemovesPartialOutput(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "in.mp4")
	audio := filepath.Join(dir, "out.wav")
	mustWriteFile(t, video, 100)

	runner := &fakeRunner{run: func(name string, args ...string) (CommandResult, error) {
		mustWriteFile(t, args[len(args)-1], 10)
		return CommandResult{ExitCode: 1, Stderr: "Stream map '0:a:0' matches no streams."}, errors.New("exit status 1")
	}}
	ex := NewWithRunner("ffmpeg", runner, foundAt("ffmpeg"), logger.Discard())

	_, err := ex.Extract(context.Background(), types.RetrievedMedia{Path: video}, audio)
	if types.KindOf(err) != types.ErrExtraction {
		t.Fatalf("err = %v, want ExtractionError", err)
	}
	if !strings.Contains(err.Error(), "matches no streams") {
		t.Fatalf("error should carry ffmpeg stderr: %v", err)
	}
	if _, err := os.Stat(audio); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("partial audio should be removed, stat err = %v", err)
	}
}

func TestExtractEmptyAudio(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "in.mp4")
	audio := filepath.Join(dir, "out.wav")
	mustWriteFile(t, video, 100)

	runner := &fakeRunner{run: func(name string, args ...string) (CommandResult, error) {
		mustWriteFile(t, args[len(args)-1], wavHeaderSize)
		return CommandResult{}, nil
	}}
	ex := NewWithRunner("ffmpeg", runner, foundAt("ffmpeg"), logger.Discard())

	if _, err := ex.Extract(context.Background(), types.RetrievedMedia{Path: video}, audio); types.KindOf(err) != types.ErrExtraction {
		t.Fatalf("err = %v, want ExtractionError", err)
	}
	if _, err := os.Stat(audio); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("header-only audio should be removed, stat err = %v", err)
	}
}

func TestExtractMissingInput(t *testing.T) {
	runner := &fakeRunner{}
	ex := NewWithRunner("ffmpeg", runner, foundAt("ffmpeg"), logger.Discard())

	_, err := ex.Extract(context.Background(), types.RetrievedMedia{Path: filepath.Join(t.TempDir(), "gone.mp4")}, "out.wav")
	if types.KindOf(err) != types.ErrExtraction {
		t.Fatalf("err = %v, want ExtractionError", err)
	}
	if len(runner.calls) != 0 {
		t.Fatal("ffmpeg should not run without input")
	}
}
