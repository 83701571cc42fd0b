package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/storyscroll/api/internal/logger"
	"github.com/storyscroll/api/internal/model"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func receive(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case data := <-c.Send:
		var out map[string]interface{}
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return out
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestHubDeliversToJobSubscribers(t *testing.T) {
	h := startHub(t)
	a := NewClient("job-a", nil, 4)
	b := NewClient("job-b", nil, 4)
	h.Register(a)
	h.Register(b)

	h.Progress(model.Job{ID: "job-a", Status: model.JobStatusProcessing, Progress: 35, Step: "Generating audio narration"})
	msg := receive(t, a)
	if msg["type"] != model.WSMessageTypeProgress || msg["progress"].(float64) != 35 {
		t.Errorf("unexpected message %v", msg)
	}

	h.Complete("job-a", "/api/video/job-a.mp4")
	msg = receive(t, a)
	if msg["type"] != model.WSMessageTypeComplete || msg["output"] != "/api/video/job-a.mp4" {
		t.Errorf("unexpected message %v", msg)
	}

	h.Failed("job-b", "PROBE_FAILED", "probe failed")
	msg = receive(t, b)
	errObj := msg["error"].(map[string]interface{})
	if errObj["code"] != "PROBE_FAILED" {
		t.Errorf("unexpected error message %v", msg)
	}

	select {
	case extra := <-a.Send:
		t.Errorf("job-a received a message for job-b: %s", extra)
	default:
	}
}

func TestHubUnregister(t *testing.T) {
	h := startHub(t)
	c := NewClient("job-a", nil, 1)
	h.Register(c)
	h.Unregister(c)

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("expected client stopped after unregister")
	}
	if h.Subscribers("job-a") != 0 {
		t.Error("expected no subscribers")
	}
}

func TestHubPublishNeverBlocks(t *testing.T) {
	// No Run loop: the queue fills and further messages are dropped.
	h := NewHub(logger.Nop())
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.Progress(model.Job{ID: "job-a", Progress: i % 100})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked with a full queue")
	}
}

func TestHubShutdownThenClientPing(t *testing.T) {
	h := NewHub(logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	c := NewClient("job-a", nil, 1)
	h.Register(c)
	cancel()
	<-stopped

	select {
	case <-c.Done():
	default:
		t.Fatal("expected client stopped by hub shutdown")
	}

	// A ping read after shutdown must not panic, even with a full queue.
	h.handleMessage(c, []byte(`{"type":"ping"}`))
	h.handleMessage(c, []byte(`{"type":"ping"}`))
	h.Unregister(c)
}

func TestHubSlowClientPingAfterDrop(t *testing.T) {
	h := startHub(t)
	c := NewClient("job-a", nil, 1)
	h.Register(c)

	h.Progress(model.Job{ID: "job-a", Progress: 10})
	h.Progress(model.Job{ID: "job-a", Progress: 20})

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("expected slow client dropped")
	}
	h.handleMessage(c, []byte(`{"type":"ping"}`))
}

func TestHubAnswersPing(t *testing.T) {
	h := startHub(t)
	c := NewClient("job-a", nil, 1)
	h.Register(c)

	h.handleMessage(c, []byte(`{"type":"ping"}`))
	if msg := receive(t, c); msg["type"] != model.WSMessageTypePong {
		t.Errorf("expected pong, got %v", msg)
	}
}
