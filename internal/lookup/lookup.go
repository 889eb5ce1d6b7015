// Package lookup fetches JSON documents over HTTP without blocking the
// session loop. Each request runs on its own goroutine; the result is
// handed back through a post function so the callback runs on the loop.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

const (
	DefaultTimeout = 10 * time.Second
	// DefaultMaxBody caps how much of a response is read.
	DefaultMaxBody = 1 << 20
)

var (
	ErrNotJSON = errors.New("response is not valid JSON")
	ErrClosed  = errors.New("fetcher closed")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Status)
}

type Result struct {
	URL    string
	Status int
	Body   gjson.Result
}

type Options struct {
	Client  *http.Client
	Timeout time.Duration
	MaxBody int64
	Logger  *slog.Logger
}

type Fetcher struct {
	client  *http.Client
	post    func(func())
	timeout time.Duration
	maxBody int64
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a fetcher whose callbacks are delivered with post. Requests
// in flight are cancelled when ctx ends or Close is called.
func New(ctx context.Context, post func(func()), opts Options) *Fetcher {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = DefaultMaxBody
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Fetcher{
		client:  opts.Client,
		post:    post,
		timeout: opts.Timeout,
		maxBody: opts.MaxBody,
		log:     opts.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Fetch GETs url in the background. done is posted exactly once, unless
// the fetcher is closed first.
func (f *Fetcher) Fetch(url string, done func(Result, error)) {
	if f.ctx.Err() != nil {
		f.post(func() { done(Result{URL: url}, ErrClosed) })
		return
	}
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		res, err := f.get(url)
		if f.ctx.Err() != nil {
			return
		}
		if err != nil {
			f.log.Debug("lookup failed", "url", url, "err", err)
		}
		f.post(func() { done(res, err) })
	}()
}

func (f *Fetcher) get(url string) (Result, error) {
	res := Result{URL: url}
	ctx, cancel := context.WithTimeout(f.ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return res, fmt.Errorf("lookup %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return res, fmt.Errorf("lookup %s: %w", url, err)
	}
	defer resp.Body.Close()

	res.Status = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, f.maxBody))
		return res, &StatusError{URL: url, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return res, fmt.Errorf("lookup %s: read body: %w", url, err)
	}
	if !gjson.ValidBytes(body) {
		return res, fmt.Errorf("lookup %s: %w", url, ErrNotJSON)
	}
	res.Body = gjson.ParseBytes(body)
	return res, nil
}

// Close cancels requests in flight and waits for their goroutines. Their
// callbacks are dropped.
func (f *Fetcher) Close() {
	f.cancel()
	f.wg.Wait()
}
