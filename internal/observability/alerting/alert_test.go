package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	xerrors "Recipe-Chain/internal/errors"
)

type captureNotifier struct {
	channel Channel
	events  []Event
	err     error
}

func (c *captureNotifier) Channel() Channel { return c.channel }

func (c *captureNotifier) Notify(_ context.Context, event Event) error {
	c.events = append(c.events, event)
	return c.err
}

func TestFanoutJoinsErrors(t *testing.T) {
	ok := &captureNotifier{channel: ChannelLog}
	failing := &captureNotifier{channel: ChannelWebhook, err: errors.New("down")}
	fanout := NewFanout(ok, failing, nil)
	err := fanout.Notify(context.Background(), Event{Code: xerrors.CodeStorageFailure})
	if err == nil {
		t.Fatalf("expected joined error")
	}
	if len(ok.events) != 1 || len(failing.events) != 1 {
		t.Fatalf("every notifier must receive the event")
	}
	if got := fanout.Channels(); len(got) != 2 || got[0] != ChannelLog {
		t.Fatalf("unexpected channels %v", got)
	}
}

func TestWebhookPostsJSON(t *testing.T) {
	var got Event
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	event := FromError(xerrors.New(xerrors.CodeStorageFailure, "mysql gone", xerrors.WithMetadata("table", "jobs")))
	event.JobID = "job-1"
	notifier := &WebhookNotifier{URL: server.URL}
	if err := notifier.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got.Code != xerrors.CodeStorageFailure || got.JobID != "job-1" || got.Metadata["table"] != "jobs" {
		t.Fatalf("unexpected payload %+v", got)
	}
	if got.Category != xerrors.CategoryInfrastructure {
		t.Fatalf("unexpected category %s", got.Category)
	}
}
