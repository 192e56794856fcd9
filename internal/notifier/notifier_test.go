package notifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"stockwatch/internal/model"
)

type mockSubscribers struct {
	mu      sync.Mutex
	subs    map[string][]string
	err     error
	removed []string
}

func (m *mockSubscribers) ListSubscribers(_ context.Context, itemID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]string(nil), m.subs[itemID]...), nil
}

func (m *mockSubscribers) RemoveDestination(_ context.Context, destination string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, destination)
	n := 0
	for item, dests := range m.subs {
		for i, d := range dests {
			if d == destination {
				m.subs[item] = append(dests[:i:i], dests[i+1:]...)
				n++
				break
			}
		}
	}
	return n, nil
}

type sentMessage struct {
	Destination string
	Msg         Message
}

type mockDispatcher struct {
	mu    sync.Mutex
	sent  []sentMessage
	fails map[string]error
}

func (m *mockDispatcher) Dispatch(_ context.Context, destination string, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{Destination: destination, Msg: msg})
	if err := m.fails[destination]; err != nil {
		return err
	}
	return nil
}

func (m *mockDispatcher) destinations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.sent {
		out = append(out, s.Destination)
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func availableRecord(item string) model.AvailabilityRecord {
	qty := 3
	return model.AvailabilityRecord{
		ItemID:          item,
		StoreID:         "2314",
		StoreName:       "Richland",
		Available:       true,
		Quantity:        &qty,
		StatusLabel:     "IN_STOCK",
		UpstreamUpdated: "2025-10-26T18:21:23.401Z",
	}
}

func TestFormatMessage(t *testing.T) {
	got := FormatMessage(availableRecord("93954446"))
	want := Message{
		Title: "IN STOCK: 93954446",
		Body:  "Qty 3 at Richland (IN_STOCK)",
		Data: map[string]any{
			"tcin":          "93954446",
			"qty":           3,
			"storeName":     "Richland",
			"inStoreStatus": "IN_STOCK",
			"updated":       "2025-10-26T18:21:23.401Z",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FormatMessage mismatch (-want +got):\n%s", diff)
	}
}

func TestNotifyAvailableIsolatesFailures(t *testing.T) {
	subs := &mockSubscribers{subs: map[string][]string{"B": {"d1", "d2"}}}
	disp := &mockDispatcher{fails: map[string]error{"d1": errors.New("gateway down")}}
	n := New(subs, disp, testLogger(), WithRate(0))

	res, err := n.NotifyAvailable(context.Background(), availableRecord("B"))
	if err != nil {
		t.Fatalf("notify: %v", err)
	}

	if diff := cmp.Diff(Result{Attempted: 2, Delivered: 1, Failed: 1}, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"d1", "d2"}, disp.destinations()); diff != "" {
		t.Errorf("dispatch order mismatch (-want +got):\n%s", diff)
	}
	if len(subs.removed) != 0 {
		t.Errorf("removed = %v, want none for an ordinary failure", subs.removed)
	}
}

func TestNotifyAvailableNoSubscribers(t *testing.T) {
	disp := &mockDispatcher{}
	n := New(&mockSubscribers{}, disp, testLogger(), WithRate(0))

	res, err := n.NotifyAvailable(context.Background(), availableRecord("A"))
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if diff := cmp.Diff(Result{}, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if len(disp.destinations()) != 0 {
		t.Errorf("dispatched %v, want nothing", disp.destinations())
	}
}

func TestNotifyAvailableStorageError(t *testing.T) {
	disp := &mockDispatcher{}
	n := New(&mockSubscribers{err: errors.New("db locked")}, disp, testLogger())

	if _, err := n.NotifyAvailable(context.Background(), availableRecord("A")); err == nil {
		t.Fatal("expected error, got nil")
	}
	if len(disp.destinations()) != 0 {
		t.Errorf("dispatched %v, want nothing", disp.destinations())
	}
}

func TestNotifyAvailableRemovesGoneDestination(t *testing.T) {
	subs := &mockSubscribers{subs: map[string][]string{"A": {"gone", "ok"}, "B": {"gone"}}}
	disp := &mockDispatcher{fails: map[string]error{
		"gone": &DeliveryError{Destination: "gone", Code: "DeviceNotRegistered"},
	}}
	n := New(subs, disp, testLogger(), WithRate(0))

	res, err := n.NotifyAvailable(context.Background(), availableRecord("A"))
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if diff := cmp.Diff(Result{Attempted: 2, Delivered: 1, Failed: 1, Removed: 1}, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"gone"}, subs.removed); diff != "" {
		t.Errorf("removed mismatch (-want +got):\n%s", diff)
	}
	if got, _ := subs.ListSubscribers(context.Background(), "B"); len(got) != 0 {
		t.Errorf("B subscribers = %v, want none", got)
	}
}

func TestNotifyAvailableCancelledContext(t *testing.T) {
	subs := &mockSubscribers{subs: map[string][]string{"A": {"d1", "d2", "d3"}}}
	disp := &mockDispatcher{}
	n := New(subs, disp, testLogger(), WithRate(0.001))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := n.NotifyAvailable(ctx, availableRecord("A"))
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if diff := cmp.Diff(Result{}, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if len(disp.destinations()) != 0 {
		t.Errorf("dispatched %v after cancellation", disp.destinations())
	}
}

func TestRouter(t *testing.T) {
	expo := &mockDispatcher{}
	tg := &mockDispatcher{}
	r := NewRouter(expo)
	r.Handle("telegram:", tg)

	ctx := context.Background()
	for _, dest := range []string{"ExponentPushToken[a]", "telegram:42", "telegramish"} {
		if err := r.Dispatch(ctx, dest, Message{Title: "t"}); err != nil {
			t.Fatalf("dispatch %s: %v", dest, err)
		}
	}

	if diff := cmp.Diff([]string{"ExponentPushToken[a]", "telegramish"}, expo.destinations()); diff != "" {
		t.Errorf("expo destinations mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"telegram:42"}, tg.destinations()); diff != "" {
		t.Errorf("telegram destinations mismatch (-want +got):\n%s", diff)
	}
}

type blockingDispatcher struct{}

func (blockingDispatcher) Dispatch(ctx context.Context, _ string, _ Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestSendAppliesDispatchTimeout(t *testing.T) {
	n := New(nil, blockingDispatcher{}, testLogger(), WithDispatchTimeout(20*time.Millisecond))

	err := n.Send(context.Background(), "ExponentPushToken[a]", Message{Title: "t"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Send error = %v, want deadline exceeded", err)
	}
}

type panickyDispatcher struct {
	mockDispatcher
	panicOn string
}

func (p *panickyDispatcher) Dispatch(ctx context.Context, destination string, msg Message) error {
	if destination == p.panicOn {
		panic("transport bug")
	}
	return p.mockDispatcher.Dispatch(ctx, destination, msg)
}

func TestNotifyAvailableIsolatesPanickingDispatch(t *testing.T) {
	subs := &mockSubscribers{subs: map[string][]string{"C": {"d1", "d2"}}}
	disp := &panickyDispatcher{panicOn: "d1"}
	n := New(subs, disp, testLogger(), WithRate(0))

	res, err := n.NotifyAvailable(context.Background(), availableRecord("C"))
	if err != nil {
		t.Fatalf("NotifyAvailable: %v", err)
	}
	if diff := cmp.Diff(Result{Attempted: 2, Delivered: 1, Failed: 1}, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"d2"}, disp.destinations()); diff != "" {
		t.Errorf("delivered destinations mismatch (-want +got):\n%s", diff)
	}
}
