package orchestrator

import (
	"context"
	"errors"
	"testing"
)

type fakeEventHandler struct {
	gotEvent string
	gotData  map[string]interface{}
	err      error
}

func (f *fakeEventHandler) HandleEvent(ctx context.Context, eventName string, eventData map[string]interface{}) error {
	f.gotEvent = eventName
	f.gotData = eventData
	return f.err
}

func TestEventRunnerExecuteDispatchesToHandler(t *testing.T) {
	h := &fakeEventHandler{}
	r := EventRunner{Handler: h}

	var published []string
	publish := func(ctx context.Context, stepID string, payload []byte) error {
		published = append(published, stepID)
		return nil
	}

	result, err := r.Execute(context.Background(), "gmail_deadline_detected", map[string]any{"domainId": "d1"}, publish)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if h.gotEvent != "gmail_deadline_detected" {
		t.Fatalf("gotEvent = %q", h.gotEvent)
	}
	if h.gotData["domainId"] != "d1" {
		t.Fatalf("gotData = %v", h.gotData)
	}
	if result["dispatched"] != true {
		t.Fatalf("result = %v", result)
	}
	if len(published) != 1 {
		t.Fatalf("expected one publish call, got %v", published)
	}
}

func TestEventRunnerExecutePropagatesHandlerError(t *testing.T) {
	wantErr := errors.New("boom")
	h := &fakeEventHandler{err: wantErr}
	r := EventRunner{Handler: h}

	if _, err := r.Execute(context.Background(), "evt", nil, nil); err == nil {
		t.Fatal("expected error")
	}
}
