// Package retrieval downloads remote videos to local storage with bounded
// retries.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"accent-analyzer-go/internal/logger"
	"accent-analyzer-go/internal/types"
)

// ChunkSize is the write granularity used while streaming a body to disk.
const ChunkSize = 1024

var retryableStatus = map[int]bool{
	http.StatusForbidden:           true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Retryable reports whether a response status is worth another attempt.
func Retryable(status int) bool {
	return retryableStatus[status]
}

type Options struct {
	// Client overrides the HTTP client; nil builds one from Timeout.
	Client      *http.Client
	UserAgent   string
	Timeout     time.Duration
	MaxAttempts int
	// BackoffBase is the wait before the second attempt; each later wait doubles.
	BackoffBase time.Duration
}

type Service struct {
	client      *http.Client
	userAgent   string
	maxAttempts int
	backoffBase time.Duration
	log         *logger.Logger
}

func New(opts Options, log *logger.Logger) *Service {
	client := opts.Client
	if client == nil {
		client = NewHTTPClient(opts.Timeout)
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	if log == nil {
		log = logger.New()
	}
	return &Service{
		client:      client,
		userAgent:   opts.UserAgent,
		maxAttempts: attempts,
		backoffBase: opts.BackoffBase,
		log:         log.WithComponent("retrieval"),
	}
}

// NewHTTPClient applies timeout to connecting and to waiting for response
// headers. The body transfer itself is not bounded so large files can finish.
func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	tr.TLSHandshakeTimeout = timeout
	tr.ResponseHeaderTimeout = timeout
	return &http.Client{Transport: tr}
}

// statusError is a non-200 response.
type statusError struct {
	code   int
	status string
}

func (e *statusError) Error() string {
	return "HTTP " + e.status
}

// Fetch streams ref.ResolvedURL into dst. On failure dst is removed and the
// error is a DownloadError carrying the last status seen.
func (s *Service) Fetch(ctx context.Context, ref types.SourceReference, dst string) (types.RetrievedMedia, error) {
	target := ref.ResolvedURL
	log := s.log.WithFields(logrus.Fields{"url": target, "dst": dst})

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.backoffBase
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = s.backoffBase << uint(s.maxAttempts)
	bo.MaxElapsedTime = 0
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if s.maxAttempts > 1 {
		policy = backoff.WithMaxRetries(bo, uint64(s.maxAttempts-1))
	}
	policy = backoff.WithContext(policy, ctx)

	var (
		attempts   int
		lastStatus int
		lastErr    error
		written    int64
	)
	op := func() error {
		attempts++
		n, err := s.attempt(ctx, target, dst)
		if err == nil {
			written = n
			lastStatus = http.StatusOK
			return nil
		}
		lastErr = err
		lastStatus = 0
		var se *statusError
		if errors.As(err, &se) {
			lastStatus = se.code
			if !Retryable(se.code) {
				return backoff.Permanent(err)
			}
		}
		var pe *permanentError
		if errors.As(err, &pe) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.WithFields(logrus.Fields{
			"attempt": attempts,
			"wait_ms": wait.Milliseconds(),
			"error":   err.Error(),
		}).Warn("download attempt failed, retrying")
	}

	log.Info("starting download")
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		if rmErr := os.Remove(dst); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.WithError(rmErr).Warn("failed to remove partial download")
		}
		log.WithFields(logrus.Fields{"attempts": attempts, "status": lastStatus}).
			WithError(lastErr).Error("download failed")
		derr := types.NewError(types.ErrDownload, lastErr, "download failed after %d attempt(s)", attempts)
		derr.StatusCode = lastStatus
		return types.RetrievedMedia{}, derr
	}

	log.WithFields(logrus.Fields{
		"attempts": attempts,
		"size":     humanize.Bytes(uint64(written)),
	}).Info("download complete")
	return types.RetrievedMedia{Path: dst, Size: written, Origin: ref}, nil
}

// permanentError wraps failures that another attempt cannot fix, such as a
// malformed URL or an unwritable destination.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func (s *Service) attempt(ctx context.Context, target, dst string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, &permanentError{fmt.Errorf("build request: %w", err)}
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return 0, &statusError{code: resp.StatusCode, status: resp.Status}
	}

	f, err := os.Create(dst)
	if err != nil {
		return 0, &permanentError{fmt.Errorf("create %s: %w", dst, err)}
	}
	// Hide ReaderFrom/WriterTo so CopyBuffer really moves ChunkSize at a time.
	buf := make([]byte, ChunkSize)
	n, copyErr := io.CopyBuffer(struct{ io.Writer }{f}, struct{ io.Reader }{resp.Body}, buf)
	closeErr := f.Close()
	if copyErr != nil {
		return n, fmt.Errorf("read body: %w", copyErr)
	}
	if closeErr != nil {
		return n, &permanentError{fmt.Errorf("close %s: %w", dst, closeErr)}
	}
	return n, nil
}
