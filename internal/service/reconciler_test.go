package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"order-lifecycle-reconciler/internal/config"
	"order-lifecycle-reconciler/internal/logger"
	"order-lifecycle-reconciler/internal/model"
	"order-lifecycle-reconciler/internal/repository"
	"order-lifecycle-reconciler/internal/store"
)

const day = 24 * time.Hour

func lifecycle(collections ...string) config.Lifecycle {
	if len(collections) == 0 {
		collections = []string{"transactions"}
	}
	return config.Lifecycle{
		TargetStatus:   "delivered",
		TerminalStatus: "completed",
		CompletionFlag: config.FlagAutoConfirmed,
		Dwell:          14 * day,
		Collections:    collections,
	}
}

// faultyTree fails reads or writes for chosen paths and delegates the rest.
type faultyTree struct {
	store.Tree
	mu       sync.Mutex
	readErr  map[string]error
	writeErr func(path string) error
}

func (f *faultyTree) ReadSubtree(ctx context.Context, path string) (any, error) {
	f.mu.Lock()
	err := f.readErr[path]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Tree.ReadSubtree(ctx, path)
}

func (f *faultyTree) WriteAtPath(ctx context.Context, path string, value any) error {
	f.mu.Lock()
	fn := f.writeErr
	f.mu.Unlock()
	if fn != nil {
		if err := fn(path); err != nil {
			return err
		}
	}
	return f.Tree.WriteAtPath(ctx, path, value)
}

func (f *faultyTree) setWriteErr(fn func(path string) error) {
	f.mu.Lock()
	f.writeErr = fn
	f.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.TransitionEvent
	err    error
}

func (p *recordingPublisher) PublishTransition(_ context.Context, ev model.TransitionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("ev%d", n)
	}
}

type harness struct {
	mem    *store.Memory
	tree   *faultyTree
	orders *repository.TreeOrderRepository
	pub    *recordingPublisher
	rec    *Reconciler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mem := store.NewMemory()
	tree := &faultyTree{Tree: mem, readErr: map[string]error{}}
	log := logger.Nop()
	orders := repository.NewTreeOrderRepository(tree, "root", log)
	issues := repository.NewTreeIssueRepository(tree, "root", "issueReports")
	pub := &recordingPublisher{}
	rec := NewReconciler(orders, NewIssueGate(issues, log), lifecycle(), log,
		WithClock(func() time.Time { return now }),
		WithIDGenerator(sequentialIDs()),
		WithPublisher(pub),
	)
	return &harness{mem: mem, tree: tree, orders: orders, pub: pub, rec: rec}
}

func (h *harness) seedOrder(t *testing.T, collection, owner, order, status string, events map[string]model.StatusEvent) {
	t.Helper()
	o := model.Order{Status: status, StatusUpdates: events}
	if err := h.mem.WriteAtPath(context.Background(), store.Join("root", collection, owner, order), o); err != nil {
		t.Fatalf("seed order: %v", err)
	}
}

func (h *harness) seedIssue(t *testing.T, owner, issue, orderID string, resolved bool) {
	t.Helper()
	node := map[string]any{"orderID": orderID, "resolved": resolved}
	if err := h.mem.WriteAtPath(context.Background(), store.Join("root", "issueReports", owner, issue), node); err != nil {
		t.Fatalf("seed issue: %v", err)
	}
}

func (h *harness) order(t *testing.T, collection, owner, order string) *model.Order {
	t.Helper()
	o, err := h.orders.FindOrder(context.Background(), model.OrderRef{Collection: collection, OwnerID: owner, OrderID: order})
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	return o
}

func deliveredAgo(d time.Duration) map[string]model.StatusEvent {
	return map[string]model.StatusEvent{
		"placed":    {Status: "processing", Timestamp: now.Add(-d - day).UnixMilli()},
		"delivered": {Status: "delivered", Timestamp: now.Add(-d).UnixMilli()},
	}
}

func TestReconcile_CompletesDueOrder(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, "transactions", "u1", "o1", "delivered", deliveredAgo(15*day))

	res, err := h.rec.Reconcile(context.Background(), lifecycle())
	if err != nil {
		t.Fatal(err)
	}
	if res.CompletedCount != 1 || res.CheckedCount != 1 || res.SkippedDueToIssues != 0 {
		t.Fatalf("result = %+v", res)
	}

	o := h.order(t, "transactions", "u1", "o1")
	if o.Status != "completed" {
		t.Fatalf("status = %q", o.Status)
	}
	ev, ok := o.StatusUpdates["ev1"]
	if !ok {
		t.Fatalf("terminal event missing: %+v", o.StatusUpdates)
	}
	if ev.Status != "completed" || !ev.IsAutoConfirmed || ev.IsMonitoringUpdate {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Timestamp != now.UnixMilli() || ev.AddedBy != "System" || ev.AddedByID != "auto-confirm-system" {
		t.Fatalf("event metadata = %+v", ev)
	}
	if ev.DaysSinceStatus != 15 || ev.MinutesSinceStatus != int64(15*day/time.Minute) {
		t.Fatalf("dwell fields = %d days, %d minutes", ev.DaysSinceStatus, ev.MinutesSinceStatus)
	}
	if !strings.Contains(ev.Message, "14 days") {
		t.Fatalf("message = %q", ev.Message)
	}
	if ev.CreatedAt != "2026-03-01T12:00:00.000Z" {
		t.Fatalf("createdAt = %q", ev.CreatedAt)
	}

	if len(h.pub.events) != 1 || h.pub.events[0].Kind != model.TransitionCompleted || h.pub.events[0].EventID != "ev1" {
		t.Fatalf("published = %+v", h.pub.events)
	}
}

func TestReconcile_PendingAndBoundary(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, "transactions", "u1", "fresh", "delivered", deliveredAgo(13*day))
	h.seedOrder(t, "transactions", "u1", "edge", "delivered", deliveredAgo(14*day))

	res, err := h.rec.Reconcile(context.Background(), lifecycle())
	if err != nil {
		t.Fatal(err)
	}
	if res.CompletedCount != 0 || res.CheckedCount != 2 {
		t.Fatalf("result = %+v", res)
	}
	if res.Collections[0].PendingCount != 2 {
		t.Fatalf("pending = %d", res.Collections[0].PendingCount)
	}
	for _, id := range []string{"fresh", "edge"} {
		o := h.order(t, "transactions", "u1", id)
		if o.Status != "delivered" || len(o.StatusUpdates) != 2 {
			t.Fatalf("%s changed: %+v", id, o)
		}
	}
}

func TestReconcile_UnresolvedIssueWithholds(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, "transactions", "u1", "o1", "delivered", deliveredAgo(20*day))
	h.seedIssue(t, "u1", "i1", "o1", false)

	res, err := h.rec.Reconcile(context.Background(), lifecycle())
	if err != nil {
		t.Fatal(err)
	}
	if res.CompletedCount != 0 || res.SkippedDueToIssues != 1 {
		t.Fatalf("result = %+v", res)
	}

	o := h.order(t, "transactions", "u1", "o1")
	if o.Status != "delivered" {
		t.Fatalf("status = %q", o.Status)
	}
	ev := o.StatusUpdates["ev1"]
	if !ev.IsMonitoringUpdate || ev.Status != "delivered" || ev.IsAutoConfirmed {
		t.Fatalf("monitoring event = %+v", ev)
	}
	if ev.DaysSinceStatus != 20 {
		t.Fatalf("days = %d", ev.DaysSinceStatus)
	}
	if len(h.pub.events) != 1 || h.pub.events[0].Kind != model.TransitionWithheld {
		t.Fatalf("published = %+v", h.pub.events)
	}

	res, err = h.rec.Reconcile(context.Background(), lifecycle())
	if err != nil {
		t.Fatal(err)
	}
	if res.CompletedCount != 0 || res.SkippedDueToIssues != 1 {
		t.Fatalf("second pass = %+v", res)
	}
	o = h.order(t, "transactions", "u1", "o1")
	if o.Status != "delivered" {
		t.Fatalf("status after second pass = %q", o.Status)
	}
	if len(o.StatusUpdates) != 4 {
		t.Fatalf("events = %d, want 4", len(o.StatusUpdates))
	}
	for _, id := range []string{"ev1", "ev2"} {
		if ev := o.StatusUpdates[id]; !ev.IsMonitoringUpdate || ev.Status != "delivered" {
			t.Fatalf("%s = %+v", id, ev)
		}
	}
}

func TestReconcile_RepeatedCollectionVisitedOnce(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, "transactions", "u1", "o1", "delivered", deliveredAgo(20*day))
	h.seedOrder(t, "transactions", "u1", "o2", "delivered", deliveredAgo(20*day))
	h.seedIssue(t, "u1", "i1", "o1", false)

	res, err := h.rec.Reconcile(context.Background(), lifecycle("transactions", "transactions"))
	if err != nil {
		t.Fatal(err)
	}
	if res.CheckedCount != 2 || res.SkippedDueToIssues != 1 || res.CompletedCount != 1 || len(res.Collections) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if n := len(h.order(t, "transactions", "u1", "o1").StatusUpdates); n != 3 {
		t.Fatalf("gated order events = %d, want 3", n)
	}
}

func TestReconcile_IssueScope(t *testing.T) {
	tests := []struct {
		name     string
		orderID  string
		resolved bool
	}{
		{"resolved issue", "o1", true},
		{"issue on another order", "o2", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.seedOrder(t, "transactions", "u1", "o1", "delivered", deliveredAgo(20*day))
			h.seedIssue(t, "u1", "i1", tt.orderID, tt.resolved)

			res, err := h.rec.Reconcile(context.Background(), lifecycle())
			if err != nil {
				t.Fatal(err)
			}
			if res.CompletedCount != 1 || res.SkippedDueToIssues != 0 {
				t.Fatalf("result = %+v", res)
			}
		})
	}
}

func TestReconcile_GateReadFailureWithholds(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, "transactions", "u1", "o1", "delivered", deliveredAgo(20*day))
	h.tree.readErr["root/issueReports/u1"] = errors.New("network down")

	res, err := h.rec.Reconcile(context.Background(), lifecycle())
	if err != nil {
		t.Fatal(err)
	}
	if res.SkippedDueToIssues != 1 || res.CompletedCount != 0 {
		t.Fatalf("result = %+v", res)
	}
	if o := h.order(t, "transactions", "u1", "o1"); o.Status != "delivered" {
		t.Fatalf("status = %q", o.Status)
	}
}

func TestReconcile_IsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, "transactions", "u1", "o1", "delivered", deliveredAgo(15*day))

	if _, err := h.rec.Reconcile(context.Background(), lifecycle()); err != nil {
		t.Fatal(err)
	}
	res, err := h.rec.Reconcile(context.Background(), lifecycle())
	if err != nil {
		t.Fatal(err)
	}
	if res.CompletedCount != 0 || res.CheckedCount != 1 || res.RepairedCount != 0 {
		t.Fatalf("second pass = %+v", res)
	}
	if o := h.order(t, "transactions", "u1", "o1"); len(o.StatusUpdates) != 3 {
		t.Fatalf("events = %d", len(o.StatusUpdates))
	}
}

func TestReconcile_StatusMatching(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, "transactions", "u1", "upper", "Delivered", deliveredAgo(15*day))
	h.seedOrder(t, "transactions", "u1", "shipped", "shipped", deliveredAgo(15*day))
	h.seedOrder(t, "transactions", "u1", "untimed", "delivered", map[string]model.StatusEvent{
		"d": {Status: "delivered"},
	})

	res, err := h.rec.Reconcile(context.Background(), lifecycle())
	if err != nil {
		t.Fatal(err)
	}
	if res.CheckedCount != 3 || res.CompletedCount != 1 {
		t.Fatalf("result = %+v", res)
	}
	if o := h.order(t, "transactions", "u1", "upper"); o.Status != "completed" {
		t.Fatalf("upper = %q", o.Status)
	}
	if o := h.order(t, "transactions", "u1", "shipped"); o.Status != "shipped" || len(o.StatusUpdates) != 2 {
		t.Fatalf("shipped changed: %+v", o)
	}
	if o := h.order(t, "transactions", "u1", "untimed"); o.Status != "delivered" || len(o.StatusUpdates) != 1 {
		t.Fatalf("untimed changed: %+v", o)
	}
}

func TestReconcile_UsesEarliestEntry(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, "transactions", "u1", "o1", "delivered", map[string]model.StatusEvent{
		"first":  {Status: "delivered", Timestamp: now.Add(-20 * day).UnixMilli()},
		"second": {Status: "delivered", Timestamp: now.Add(-day).UnixMilli()},
	})

	res, err := h.rec.Reconcile(context.Background(), lifecycle())
	if err != nil {
		t.Fatal(err)
	}
	if res.CompletedCount != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestReconcile_CompletionFlag(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, "transactions", "u1", "o1", "out for delivery", map[string]model.StatusEvent{
		"d": {Status: "out for delivery", Timestamp: now.Add(-2 * time.Hour).UnixMilli()},
	})
	s := lifecycle()
	s.TargetStatus = "out for delivery"
	s.CompletionFlag = config.FlagAutoCompleted
	s.Dwell = time.Hour

	if _, err := h.rec.Reconcile(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	ev := h.order(t, "transactions", "u1", "o1").StatusUpdates["ev1"]
	if !ev.IsAutoCompleted || ev.IsAutoConfirmed {
		t.Fatalf("event = %+v", ev)
	}
	if ev.MinutesSinceStatus != 120 {
		t.Fatalf("minutes = %d", ev.MinutesSinceStatus)
	}
}

func TestReconcile_CollectionIsolation(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, "broken", "u1", "o1", "delivered", deliveredAgo(15*day))
	h.seedOrder(t, "transactions", "u1", "o1", "delivered", deliveredAgo(15*day))
	h.tree.readErr["root/broken"] = errors.New("permission denied")

	res, err := h.rec.Reconcile(context.Background(), lifecycle("broken", "transactions"))
	if !errors.Is(err, ErrStoreRead) {
		t.Fatalf("err = %v, want ErrStoreRead", err)
	}
	var cerr *CollectionError
	if !errors.As(err, &cerr) || cerr.Collection != "broken" {
		t.Fatalf("err = %v", err)
	}
	if res == nil || res.CompletedCount != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Collections) != 2 || res.Collections[0].Error == "" || res.Collections[1].Error != "" {
		t.Fatalf("collections = %+v", res.Collections)
	}
}

func TestReconcile_StatusWriteFailureIsRepaired(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, "transactions", "u1", "o1", "delivered", deliveredAgo(15*day))
	h.tree.setWriteErr(func(path string) error {
		if strings.HasSuffix(path, "/status") {
			return errors.New("write timeout")
		}
		return nil
	})

	res, err := h.rec.Reconcile(context.Background(), lifecycle())
	if err != nil {
		t.Fatal(err)
	}
	if res.CompletedCount != 0 || res.FailedCount != 1 {
		t.Fatalf("first pass = %+v", res)
	}
	if o := h.order(t, "transactions", "u1", "o1"); o.Status != "delivered" || len(o.StatusUpdates) != 3 {
		t.Fatalf("after failed pass: %+v", o)
	}

	h.tree.setWriteErr(nil)
	res, err = h.rec.Reconcile(context.Background(), lifecycle())
	if err != nil {
		t.Fatal(err)
	}
	if res.RepairedCount != 1 || res.CompletedCount != 0 {
		t.Fatalf("second pass = %+v", res)
	}
	o := h.order(t, "transactions", "u1", "o1")
	if o.Status != "completed" || len(o.StatusUpdates) != 3 {
		t.Fatalf("after repair: %+v", o)
	}
}

func TestReconcile_AppendFailureLeavesOrder(t *testing.T) {
	h := newHarness(t)
	h.seedOrder(t, "transactions", "u1", "o1", "delivered", deliveredAgo(15*day))
	h.seedOrder(t, "transactions", "u2", "o1", "delivered", deliveredAgo(15*day))
	h.tree.setWriteErr(func(path string) error {
		if strings.HasPrefix(path, "root/transactions/u1/") {
			return errors.New("quota exceeded")
		}
		return nil
	})

	res, err := h.rec.Reconcile(context.Background(), lifecycle())
	if err != nil {
		t.Fatal(err)
	}
	if res.FailedCount != 1 || res.CompletedCount != 1 {
		t.Fatalf("result = %+v", res)
	}
	if o := h.order(t, "transactions", "u1", "o1"); o.Status != "delivered" || len(o.StatusUpdates) != 2 {
		t.Fatalf("u1 changed: %+v", o)
	}
}

func TestReconcile_PublishFailureIgnored(t *testing.T) {
	h := newHarness(t)
	h.pub.err = errors.New("channel closed")
	h.seedOrder(t, "transactions", "u1", "o1", "delivered", deliveredAgo(15*day))

	res, err := h.rec.Reconcile(context.Background(), lifecycle())
	if err != nil {
		t.Fatal(err)
	}
	if res.CompletedCount != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestReconcile_InvalidSettings(t *testing.T) {
	h := newHarness(t)
	s := lifecycle()
	s.Dwell = 0
	if _, err := h.rec.Reconcile(context.Background(), s); !errors.Is(err, config.ErrInvalidSettings) {
		t.Fatalf("err = %v", err)
	}
}

type blockingGate struct {
	entered chan struct{}
	release chan struct{}
}

func (g *blockingGate) HasUnresolvedIssue(context.Context, string, string) bool {
	g.entered <- struct{}{}
	<-g.release
	return false
}

func TestReconcile_RejectsOverlappingRuns(t *testing.T) {
	mem := store.NewMemory()
	orders := repository.NewTreeOrderRepository(mem, "root", logger.Nop())
	gate := &blockingGate{entered: make(chan struct{}, 1), release: make(chan struct{})}
	rec := NewReconciler(orders, gate, lifecycle(), logger.Nop(), WithClock(func() time.Time { return now }))

	o := model.Order{Status: "delivered", StatusUpdates: deliveredAgo(15 * day)}
	if err := mem.WriteAtPath(context.Background(), "root/transactions/u1/o1", o); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := rec.Reconcile(context.Background(), lifecycle())
		done <- err
	}()
	<-gate.entered

	if !rec.Running() {
		t.Fatal("expected a pass in flight")
	}
	if _, err := rec.Reconcile(context.Background(), lifecycle()); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("err = %v, want ErrRunInProgress", err)
	}

	close(gate.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if rec.Running() {
		t.Fatal("guard not released")
	}
}

func TestFormatDwell(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{14 * day, "14 days"},
		{day, "1 day"},
		{6 * time.Hour, "6 hours"},
		{10 * time.Minute, "10 minutes"},
		{90 * time.Second, "1m30s"},
	}
	for _, tt := range tests {
		if got := FormatDwell(tt.in); got != tt.want {
			t.Errorf("FormatDwell(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
