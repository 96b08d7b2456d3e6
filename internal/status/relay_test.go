package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePublisher struct {
	mu       sync.Mutex
	payloads []json.RawMessage
	events   []string
}

func (f *fakePublisher) Broadcast(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	f.payloads = append(f.payloads, payload.(json.RawMessage))
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func TestRelay_Poll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"engine":"armed"}`))
	}))
	defer srv.Close()

	r := NewRelay(srv.URL, time.Second, 10*time.Millisecond, 10*time.Millisecond, &fakePublisher{}, zap.NewNop())

	payload, err := r.Poll(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"engine":"armed"}`, string(payload))
}

func TestRelay_PollErrors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"non-200": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		},
		"invalid json": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()

			r := NewRelay(srv.URL, time.Second, time.Millisecond, time.Millisecond, &fakePublisher{}, zap.NewNop())
			_, err := r.Poll(context.Background())
			assert.ErrorIs(t, err, ErrUpstream)
		})
	}

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()
	r := NewRelay(url, time.Second, time.Millisecond, time.Millisecond, &fakePublisher{}, zap.NewNop())
	_, err := r.Poll(context.Background())
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestRelay_RunRepublishesAndRecovers(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	pub := &fakePublisher{}
	r := NewRelay(srv.URL, time.Second, 5*time.Millisecond, 20*time.Millisecond, pub, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return pub.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, Event, pub.events[0])
	assert.JSONEq(t, `{"ok":true}`, string(pub.payloads[0]))
}
