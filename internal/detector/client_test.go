package detector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

type ipv4Server struct {
	URL string
	srv *http.Server
	ln  net.Listener
}

func newIPv4Server(t *testing.T, handler http.Handler) *ipv4Server {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
			t.Skipf("skipping test: cannot open local listener (%v)", err)
		}
		t.Fatalf("listen tcp4: %v", err)
	}
	srv := &http.Server{Handler: handler}
	s := &ipv4Server{
		URL: "http://" + ln.Addr().String(),
		srv: srv,
		ln:  ln,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(fmt.Sprintf("test server serve: %v", err))
		}
	}()
	return s
}

func (s *ipv4Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}

func testServerSequence(t *testing.T, statuses []int, headers []http.Header, okBody string) (*ipv4Server, *int32) {
	t.Helper()
	var idx int32
	return newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/detect" {
			http.NotFound(w, r)
			return
		}
		i := int(atomic.AddInt32(&idx, 1)) - 1
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		st := statuses[i]
		if headers != nil && i < len(headers) && headers[i] != nil {
			for k, vals := range headers[i] {
				for _, v := range vals {
					w.Header().Add(k, v)
				}
			}
		}
		w.WriteHeader(st)
		if st >= 200 && st < 300 {
			_, _ = w.Write([]byte(okBody))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "busy"}})
	})), &idx
}

func TestScoreSendsEssayAndParsesNumber(t *testing.T) {
	var got detectRequest
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" || r.Header.Get("Content-Type") != "application/json" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte("87\n"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "", 2*time.Second, 1, 0, 0)
	score, err := c.Score(context.Background(), "an essay")
	if err != nil {
		t.Fatalf("Score returned error: %v", err)
	}
	if score != 87 {
		t.Fatalf("score=%d want 87", score)
	}
	if got.Essay != "an essay" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestScoreRetriesOn503(t *testing.T) {
	srv, calls := testServerSequence(t, []int{503, 503, 200}, nil, `"42"`)
	defer srv.Close()

	c := NewClient(srv.URL, "", 2*time.Second, 3, 5*time.Millisecond, 20*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	score, err := c.Score(ctx, "text")
	if err != nil {
		t.Fatalf("Score returned error: %v", err)
	}
	if score != 42 {
		t.Fatalf("score=%d want 42", score)
	}
	if n := atomic.LoadInt32(calls); n != 3 {
		t.Fatalf("calls=%d want 3", n)
	}
}

func TestScoreGivesUpAfterMaxAttempts(t *testing.T) {
	srv, calls := testServerSequence(t, []int{500}, nil, "")
	defer srv.Close()

	c := NewClient(srv.URL, "", 2*time.Second, 2, 5*time.Millisecond, 10*time.Millisecond)
	_, err := c.Score(context.Background(), "text")
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServerError, got %T: %v", err, err)
	}
	if n := atomic.LoadInt32(calls); n != 2 {
		t.Fatalf("calls=%d want 2", n)
	}
}

func TestRetryAfterHonored(t *testing.T) {
	srv, _ := testServerSequence(t, []int{429, 200}, []http.Header{{"Retry-After": {"1"}}, {}}, "10")
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second, 3, 0, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	if _, err := c.Score(ctx, "hi"); err != nil {
		t.Fatalf("Score returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Fatalf("expected at least ~1s delay due to Retry-After, got %v", elapsed)
	}
}

func TestAuthErrorIsNotRetried(t *testing.T) {
	srv, calls := testServerSequence(t, []int{401}, []http.Header{{"X-Request-Id": {"req_test_123"}}}, "")
	defer srv.Close()

	c := NewClient(srv.URL, "secret", 2*time.Second, 3, 5*time.Millisecond, 10*time.Millisecond)
	_, err := c.Score(context.Background(), "hi")
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AuthError, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "req_test_123") {
		t.Fatalf("expected request id in error, got: %v", err)
	}
	if n := atomic.LoadInt32(calls); n != 1 {
		t.Fatalf("calls=%d want 1", n)
	}
}

func TestInvalidBodyIsAnError(t *testing.T) {
	srv, _ := testServerSequence(t, []int{200}, nil, "<html>maintenance</html>")
	defer srv.Close()

	c := NewClient(srv.URL, "", 2*time.Second, 1, 0, 0)
	_, err := c.Score(context.Background(), "hi")
	var ir *InvalidResponseError
	if !errors.As(err, &ir) {
		t.Fatalf("expected InvalidResponseError, got %T: %v", err, err)
	}
}

func TestUnreachableEndpoint(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test: cannot open local listener (%v)", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	c := NewClient("http://"+addr, "", time.Second, 1, 0, 0)
	_, err = c.Score(context.Background(), "hi")
	var ue *UnreachableError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnreachableError, got %T: %v", err, err)
	}
}

func TestScoreRespectsCancelledContext(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "", time.Second, 3, 0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Score(ctx, "hi"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParseScore(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"87", 87, false},
		{" 12\n", 12, false},
		{`"64"`, 64, false},
		{"73.9", 73, false},
		{"55%", 55, false},
		{`{"score": 91.2}`, 91, false},
		{`{"ai_percentage": "30"}`, 30, false},
		{"", 0, true},
		{"abc", 0, true},
		{`{"other": 1}`, 0, true},
	}
	for _, c := range cases {
		got, err := ParseScore([]byte(c.in))
		if c.wantErr {
			if err == nil {
				t.Errorf("%q: expected error, got %d", c.in, got)
			}
			continue
		}
		if err != nil || got != c.want {
			t.Errorf("%q: got %d, %v want %d", c.in, got, err, c.want)
		}
	}
}

type countingScorer struct {
	calls int
	score int
	err   error
}

func (c *countingScorer) Score(context.Context, string) (int, error) {
	c.calls++
	return c.score, c.err
}

func TestCachedScorer(t *testing.T) {
	next := &countingScorer{score: 70}
	c := NewCachedScorer(next, time.Minute)
	for i := 0; i < 3; i++ {
		got, err := c.Score(context.Background(), "same text")
		if err != nil || got != 70 {
			t.Fatalf("got %d, %v", got, err)
		}
	}
	if next.calls != 1 {
		t.Fatalf("calls=%d want 1", next.calls)
	}
	_, _ = c.Score(context.Background(), "other text")
	if next.calls != 2 {
		t.Fatalf("calls=%d want 2 for new text", next.calls)
	}

	failing := &countingScorer{err: errors.New("down")}
	fc := NewCachedScorer(failing, 0)
	_, _ = fc.Score(context.Background(), "x")
	_, _ = fc.Score(context.Background(), "x")
	if failing.calls != 2 {
		t.Fatalf("failures must not be cached, calls=%d", failing.calls)
	}
}
