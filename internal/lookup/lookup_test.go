package lookup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// chanPost delivers posted callbacks to the test goroutine.
type chanPost chan func()

func (c chanPost) post(fn func()) { c <- fn }

func (c chanPost) next(t *testing.T) {
	t.Helper()
	select {
	case fn := <-c:
		fn()
	case <-time.After(5 * time.Second):
		t.Fatalf("callback never posted")
	}
}

func TestFetchJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("accept=%q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"name":"Bob","city":"Mhaldor","level":99}`)
	}))
	defer srv.Close()

	posts := make(chanPost, 1)
	f := New(context.Background(), posts.post, Options{})
	defer f.Close()

	var got Result
	var gotErr error
	f.Fetch(srv.URL+"/characters/bob.json", func(r Result, err error) { got, gotErr = r, err })
	posts.next(t)

	if gotErr != nil {
		t.Fatalf("err=%v", gotErr)
	}
	if got.Status != 200 || got.Body.Get("city").String() != "Mhaldor" || got.Body.Get("level").Int() != 99 {
		t.Fatalf("result=%+v", got)
	}
}

func TestFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	posts := make(chanPost, 1)
	f := New(context.Background(), posts.post, Options{})
	defer f.Close()

	var gotErr error
	f.Fetch(srv.URL, func(_ Result, err error) { gotErr = err })
	posts.next(t)

	var se *StatusError
	if !errors.As(gotErr, &se) || se.Status != http.StatusNotFound {
		t.Fatalf("err=%v", gotErr)
	}
}

func TestFetchRejectsNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>nope</html>")
	}))
	defer srv.Close()

	posts := make(chanPost, 1)
	f := New(context.Background(), posts.post, Options{})
	defer f.Close()

	var gotErr error
	f.Fetch(srv.URL, func(_ Result, err error) { gotErr = err })
	posts.next(t)

	if !errors.Is(gotErr, ErrNotJSON) {
		t.Fatalf("err=%v", gotErr)
	}
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	posts := make(chanPost, 1)
	f := New(context.Background(), posts.post, Options{Timeout: 50 * time.Millisecond})
	defer f.Close()

	var gotErr error
	f.Fetch(srv.URL, func(_ Result, err error) { gotErr = err })
	posts.next(t)

	if !errors.Is(gotErr, context.DeadlineExceeded) {
		t.Fatalf("err=%v", gotErr)
	}
}

func TestFetchAfterClose(t *testing.T) {
	posts := make(chanPost, 1)
	f := New(context.Background(), posts.post, Options{})
	f.Close()

	var gotErr error
	f.Fetch("http://127.0.0.1:1/", func(_ Result, err error) { gotErr = err })
	posts.next(t)

	if !errors.Is(gotErr, ErrClosed) {
		t.Fatalf("err=%v", gotErr)
	}
}
