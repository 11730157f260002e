package pipeline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"accent-analyzer-go/internal/classifier"
	"accent-analyzer-go/internal/logger"
	"accent-analyzer-go/internal/retrieval"
	"accent-analyzer-go/internal/source"
	"accent-analyzer-go/internal/transcription"
	"accent-analyzer-go/internal/types"
)

// fakeExtractor writes a small WAV unless told to fail.
type fakeExtractor struct {
	checkErr   error
	extractErr error
	calls      int
	sawMedia   bool
}

func (f *fakeExtractor) CheckAvailable(ctx context.Context) error { return f.checkErr }

func (f *fakeExtractor) Extract(ctx context.Context, media types.RetrievedMedia, dst string) (types.ExtractedAudio, error) {
	f.calls++
	_, err := os.Stat(media.Path)
	f.sawMedia = err == nil
	if f.extractErr != nil {
		return types.ExtractedAudio{}, f.extractErr
	}
	if err := os.WriteFile(dst, []byte(strings.Repeat("a", 128)), 0o644); err != nil {
		return types.ExtractedAudio{}, err
	}
	return types.ExtractedAudio{Path: dst, Size: 128}, nil
}

// fakeFetcher writes a fixed payload and counts calls.
type fakeFetcher struct {
	calls int
	refs  []types.SourceReference
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref types.SourceReference, dst string) (types.RetrievedMedia, error) {
	f.calls++
	f.refs = append(f.refs, ref)
	if f.err != nil {
		return types.RetrievedMedia{}, f.err
	}
	if err := os.WriteFile(dst, []byte("video"), 0o644); err != nil {
		return types.RetrievedMedia{}, err
	}
	return types.RetrievedMedia{Path: dst, Size: 5, Origin: ref}, nil
}

type countingClassifier struct {
	classifier.Mock
	calls int
}

func (c *countingClassifier) Classify(ctx context.Context, audioPath string) (classifier.Prediction, error) {
	c.calls++
	return c.Mock.Classify(ctx, audioPath)
}

// staticTransport answers every request with 200 and body, recording URLs.
type staticTransport struct {
	mu   sync.Mutex
	urls []string
	body string
}

func (s *staticTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	s.urls = append(s.urls, req.URL.String())
	s.mu.Unlock()
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(s.body)),
		Request:    req,
	}, nil
}

// leftovers lists run artifacts remaining in dir, ignoring the lock file.
func leftovers(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		t.Fatalf("read dir: %v", err)
	}
	var out []string
	for _, e := range entries {
		if e.Name() == lockFileName {
			continue
		}
		out = append(out, e.Name())
	}
	return out
}

func remoteRef(raw string) types.SourceReference {
	return types.SourceReference{Kind: types.SourceRemote, RawURL: raw}
}

func TestAnalyzeHostedShareEndToEnd(t *testing.T) {
	work := t.TempDir()
	transport := &staticTransport{body: strings.Repeat("m", 4096)}
	fetcher := retrieval.New(retrieval.Options{
		Client:      &http.Client{Transport: transport},
		MaxAttempts: 5,
		BackoffBase: time.Millisecond,
	}, logger.Discard())
	ex := &fakeExtractor{}
	var states []State
	a := New(Deps{
		Fetcher:     fetcher,
		Extractor:   ex,
		Transcriber: transcription.Mock{Text: "hello, this is a test"},
		Classifier:  classifier.Mock{Prediction: classifier.Prediction{Label: "england", Probability: 0.91}},
		WorkDir:     work,
		Log:         logger.Discard(),
		OnStage:     func(s State) { states = append(states, s) },
	})

	res := a.Analyze(context.Background(), remoteRef("https://drive.google.com/file/d/ABC123xyz/view"))
	if !res.Succeeded() {
		t.Fatalf("expected success, got failure %#v", res.Failure)
	}
	if res.Classification.Accent != "British" || res.Classification.Confidence != 91.00 {
		t.Fatalf("classification = %#v", res.Classification)
	}
	if res.Summary == "" {
		t.Fatal("expected summary text")
	}
	if len(transport.urls) != 1 || transport.urls[0] != "https://drive.google.com/uc?export=download&id=ABC123xyz" {
		t.Fatalf("requested urls = %v", transport.urls)
	}
	want := []State{PrerequisiteCheck, Acquiring, Extracting, Transcribing, Classifying, Done}
	if !reflect.DeepEqual(states, want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	if !ex.sawMedia {
		t.Fatal("extractor should see the downloaded media")
	}
	if left := leftovers(t, work); len(left) != 0 {
		t.Fatalf("artifacts left behind: %v", left)
	}
}

func TestAnalyzeExtractionFailureCleansMedia(t *testing.T) {
	work := t.TempDir()
	fetcher := &fakeFetcher{}
	ex := &fakeExtractor{extractErr: types.NewError(types.ErrExtraction, nil, "no audio track")}
	cls := &countingClassifier{}
	var states []State
	a := New(Deps{
		Fetcher:     fetcher,
		Extractor:   ex,
		Transcriber: transcription.Mock{Text: "unused"},
		Classifier:  cls,
		WorkDir:     work,
		Log:         logger.Discard(),
		OnStage:     func(s State) { states = append(states, s) },
	})

	res := a.Analyze(context.Background(), remoteRef("https://example.com/clip.mp4"))
	if res.Succeeded() || res.Failure.Kind != types.ErrExtraction {
		t.Fatalf("result = %#v, want ExtractionError", res)
	}
	if res.Failure.Stage != string(Extracting) {
		t.Fatalf("failed stage = %q", res.Failure.Stage)
	}
	if !ex.sawMedia {
		t.Fatal("media should exist while extracting")
	}
	if cls.calls != 0 {
		t.Fatal("classifier must not run after extraction failure")
	}
	if states[len(states)-1] != Failed {
		t.Fatalf("last state = %v, want failed", states[len(states)-1])
	}
	if left := leftovers(t, work); len(left) != 0 {
		t.Fatalf("artifacts left behind: %v", left)
	}
}

func TestAnalyzeInvalidShareNeverFetches(t *testing.T) {
	fetcher := &fakeFetcher{}
	a := New(Deps{
		Fetcher:     fetcher,
		Extractor:   &fakeExtractor{},
		Transcriber: transcription.Mock{Text: "x"},
		Classifier:  classifier.Mock{},
		WorkDir:     t.TempDir(),
		Log:         logger.Discard(),
	})

	res := a.Analyze(context.Background(), remoteRef("https://drive.google.com/drive/folders/xyz"))
	if res.Succeeded() || res.Failure.Kind != types.ErrInvalidSource {
		t.Fatalf("result = %#v, want InvalidSourceError", res.Failure)
	}
	if fetcher.calls != 0 {
		t.Fatalf("fetcher called %d times", fetcher.calls)
	}
}

func TestAnalyzePrerequisiteMissingStopsEarly(t *testing.T) {
	work := t.TempDir()
	upload := filepath.Join(work, "upload.mp4")
	if err := os.WriteFile(upload, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	fetcher := &fakeFetcher{}
	ex := &fakeExtractor{checkErr: types.NewError(types.ErrPrerequisiteMissing, nil, "ffmpeg missing")}
	a := New(Deps{
		Fetcher:     fetcher,
		Extractor:   ex,
		Transcriber: transcription.Mock{Text: "x"},
		Classifier:  classifier.Mock{},
		WorkDir:     work,
		Log:         logger.Discard(),
	})

	res := a.Analyze(context.Background(), source.Local(upload))
	if res.Succeeded() || res.Failure.Kind != types.ErrPrerequisiteMissing {
		t.Fatalf("result = %#v, want PrerequisiteMissingError", res.Failure)
	}
	if ex.calls != 0 || fetcher.calls != 0 {
		t.Fatal("no stage may run after a failed prerequisite check")
	}
	if left := leftovers(t, work); len(left) != 0 {
		t.Fatalf("upload should be released, left: %v", left)
	}
}

func TestAnalyzeLocalUploadSuccess(t *testing.T) {
	work := t.TempDir()
	upload := filepath.Join(work, "upload.mp4")
	if err := os.WriteFile(upload, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	fetcher := &fakeFetcher{}
	a := New(Deps{
		Fetcher:     fetcher,
		Extractor:   &fakeExtractor{},
		Transcriber: transcription.Mock{Text: "speech"},
		Classifier:  classifier.Mock{Prediction: classifier.Prediction{Label: "us", Probability: 0}},
		WorkDir:     work,
		Log:         logger.Discard(),
	})

	res := a.Analyze(context.Background(), source.Local(upload))
	if !res.Succeeded() {
		t.Fatalf("expected success, got %#v", res.Failure)
	}
	if res.Classification.Accent != "American" || res.Classification.Confidence != 0 {
		t.Fatalf("classification = %#v", res.Classification)
	}
	if fetcher.calls != 0 {
		t.Fatal("local uploads must not be fetched")
	}
	if left := leftovers(t, work); len(left) != 0 {
		t.Fatalf("artifacts left behind: %v", left)
	}
}

func TestAnalyzeEmptyTranscriptSkipsClassification(t *testing.T) {
	work := t.TempDir()
	cls := &countingClassifier{}
	a := New(Deps{
		Fetcher:     &fakeFetcher{},
		Extractor:   &fakeExtractor{},
		Transcriber: transcription.Mock{Text: "   "},
		Classifier:  cls,
		WorkDir:     work,
		Log:         logger.Discard(),
	})

	res := a.Analyze(context.Background(), remoteRef("https://example.com/v.mp4"))
	if res.Succeeded() || res.Failure.Kind != types.ErrTranscription || res.Failure.Stage != string(Transcribing) {
		t.Fatalf("result = %#v, want TranscriptionError at transcribing", res.Failure)
	}
	if cls.calls != 0 {
		t.Fatal("classifier must not run without speech")
	}
	if left := leftovers(t, work); len(left) != 0 {
		t.Fatalf("artifacts left behind: %v", left)
	}
}

func TestAnalyzeClassificationFailure(t *testing.T) {
	work := t.TempDir()
	a := New(Deps{
		Fetcher:     &fakeFetcher{},
		Extractor:   &fakeExtractor{},
		Transcriber: transcription.Mock{Text: "speech"},
		Classifier:  classifier.Mock{Err: errors.New("model unavailable")},
		WorkDir:     work,
		Log:         logger.Discard(),
	})

	res := a.Analyze(context.Background(), remoteRef("https://example.com/v.mp4"))
	if res.Succeeded() || res.Failure.Kind != types.ErrClassification {
		t.Fatalf("result = %#v, want ClassificationError", res.Failure)
	}
	if res.Classification != nil {
		t.Fatal("failed runs must not carry a classification")
	}
	if left := leftovers(t, work); len(left) != 0 {
		t.Fatalf("artifacts left behind: %v", left)
	}
}

func TestAnalyzeDownloadAlways500(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	work := t.TempDir()
	ex := &fakeExtractor{}
	a := New(Deps{
		Fetcher:     retrieval.New(retrieval.Options{Timeout: time.Second, MaxAttempts: 5, BackoffBase: time.Millisecond}, logger.Discard()),
		Extractor:   ex,
		Transcriber: transcription.Mock{Text: "x"},
		Classifier:  classifier.Mock{},
		WorkDir:     work,
		Log:         logger.Discard(),
	})

	res := a.Analyze(context.Background(), remoteRef(srv.URL+"/stream"))
	if res.Succeeded() || res.Failure.Kind != types.ErrDownload {
		t.Fatalf("result = %#v, want DownloadError", res.Failure)
	}
	if hits.Load() != 5 {
		t.Fatalf("attempts = %d, want 5", hits.Load())
	}
	if ex.calls != 0 {
		t.Fatal("extractor must not run after download failure")
	}
	if left := leftovers(t, work); len(left) != 0 {
		t.Fatalf("artifacts left behind: %v", left)
	}
}

func TestAnalyzeCleanupContinuesAfterRemoveError(t *testing.T) {
	work := t.TempDir()
	a := New(Deps{
		Fetcher:     &fakeFetcher{},
		Extractor:   &fakeExtractor{},
		Transcriber: transcription.Mock{Text: "speech"},
		Classifier:  classifier.Mock{Prediction: classifier.Prediction{Label: "wales", Probability: 0.5}},
		WorkDir:     work,
		Log:         logger.Discard(),
	})
	var removed []string
	a.remove = func(path string) error {
		removed = append(removed, filepath.Base(path))
		if strings.HasSuffix(path, "-audio.wav") {
			return errors.New("device busy")
		}
		return os.Remove(path)
	}
	a.newID = func() string { return "run1" }

	res := a.Analyze(context.Background(), remoteRef("https://example.com/v.mp4"))
	if !res.Succeeded() {
		t.Fatalf("cleanup errors must not fail the run: %#v", res.Failure)
	}
	want := []string{"run1-audio.wav", "run1-media.mp4"}
	if !reflect.DeepEqual(removed, want) {
		t.Fatalf("removed = %v, want %v", removed, want)
	}
	if _, err := os.Stat(filepath.Join(work, "run1-media.mp4")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("media should still be removed after audio removal failed")
	}
}
