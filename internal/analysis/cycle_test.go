package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"nifty-signals/internal/model"
	"nifty-signals/internal/strategy"
)

var fixedNow = time.Date(2026, 3, 2, 5, 0, 0, 0, time.UTC)

func barsFromCloses(closes []float64) []model.PriceBar {
	bars := make([]model.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = model.PriceBar{
			Date:   fixedNow.AddDate(0, 0, i-len(closes)),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

// oversoldBars drives RSI(14) to exactly 25 with the last close at 94.
func oversoldBars() []model.PriceBar {
	closes := []float64{100}
	for i := 0; i < 12; i++ {
		closes = append(closes, closes[len(closes)-1]-0.75)
	}
	closes = append(closes, closes[len(closes)-1]+1.5, closes[len(closes)-1]+3)
	return barsFromCloses(closes)
}

// quietBars alternates around 100 so RSI is 50 and price sits on its SMA.
func quietBars() []model.PriceBar {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i%2)
	}
	return barsFromCloses(closes)
}

type fakeSource struct {
	mu      sync.Mutex
	bars    map[string][]model.PriceBar
	errs    map[string]error
	panics  map[string]bool
	block   chan struct{}
	fetched []string
}

func (f *fakeSource) Fetch(ctx context.Context, symbol string, days int) ([]model.PriceBar, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, symbol)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.panics[symbol] {
		panic("boom")
	}
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	return f.bars[symbol], nil
}

type fakeStore struct {
	err     error
	batches [][]model.Signal
}

func (s *fakeStore) SaveBatch(ctx context.Context, signals []model.Signal) error {
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, signals)
	return nil
}

type sentMessage struct{ chatID, text string }

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (n *fakeNotifier) Send(ctx context.Context, chatID, text string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{chatID, text})
	return true
}

type fakePublisher struct {
	cycleIDs []string
	batches  [][]model.Signal
}

func (p *fakePublisher) Publish(ctx context.Context, cycleID string, signals []model.Signal) error {
	p.cycleIDs = append(p.cycleIDs, cycleID)
	p.batches = append(p.batches, signals)
	return nil
}

type fakeLock struct {
	held     bool
	released int
}

func (l *fakeLock) TryAcquire(ctx context.Context) (func(context.Context) error, bool, error) {
	if l.held {
		return nil, false, nil
	}
	return func(context.Context) error { l.released++; return nil }, true, nil
}

func newTestCycle(src *fakeSource, store *fakeStore, n *fakeNotifier, symbols []string, opts ...Option) *Cycle {
	engine := strategy.NewEngine(strategy.CoreRules()...).WithClock(func() time.Time { return fixedNow })
	cfg := Config{Symbols: symbols, LookbackDays: 30, MinBars: 2, BroadcastChat: "broadcast"}
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(cfg, src, engine, store, n, opts...)
}

func TestRun_PartialFailure(t *testing.T) {
	src := &fakeSource{
		bars: map[string][]model.PriceBar{"Y.NS": oversoldBars()},
		errs: map[string]error{"X.NS": errors.New("timeout")},
	}
	store, n := &fakeStore{}, &fakeNotifier{}
	c := newTestCycle(src, store, n, []string{"X.NS", "Y.NS"})

	signals, err := c.Run(context.Background(), Request{Trigger: TriggerScheduler})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("got %d signals, want 1: %+v", len(signals), signals)
	}
	s := signals[0]
	if s.Symbol != "Y.NS" || s.Type != model.SignalBuy || s.Strength != model.StrengthStrong {
		t.Errorf("signal = %+v", s)
	}
	if !strings.Contains(s.Description, "RSI Oversold: 25") {
		t.Errorf("description = %q", s.Description)
	}
	if s.Price.InexactFloat64() != 94 {
		t.Errorf("price = %s, want last close 94", s.Price)
	}
	if len(store.batches) != 1 || len(store.batches[0]) != 1 {
		t.Errorf("batches = %+v", store.batches)
	}
	if len(n.sent) != 1 || n.sent[0].chatID != "broadcast" || !strings.Contains(n.sent[0].text, "<b>Y</b>") {
		t.Errorf("sent = %+v", n.sent)
	}
}

func TestRun_PanicIsolated(t *testing.T) {
	src := &fakeSource{
		bars:   map[string][]model.PriceBar{"Y.NS": oversoldBars()},
		panics: map[string]bool{"X.NS": true},
	}
	c := newTestCycle(src, &fakeStore{}, &fakeNotifier{}, []string{"X.NS", "Y.NS"})

	signals, err := c.Run(context.Background(), Request{})
	if err != nil || len(signals) != 1 {
		t.Fatalf("signals=%d err=%v", len(signals), err)
	}
}

func TestRun_InsufficientBarsSkipped(t *testing.T) {
	src := &fakeSource{bars: map[string][]model.PriceBar{
		"SHORT.NS": oversoldBars()[:1],
		"NONE.NS":  nil,
	}}
	store := &fakeStore{}
	c := newTestCycle(src, store, &fakeNotifier{}, []string{"SHORT.NS", "NONE.NS"})

	signals, err := c.Run(context.Background(), Request{})
	if err != nil || len(signals) != 0 {
		t.Fatalf("signals=%v err=%v", signals, err)
	}
	if len(store.batches) != 0 {
		t.Error("empty pass must not write")
	}
}

func TestRun_EmptyPassRepliesOnlyToRequester(t *testing.T) {
	src := &fakeSource{bars: map[string][]model.PriceBar{"Q.NS": quietBars()}}
	n := &fakeNotifier{}
	c := newTestCycle(src, &fakeStore{}, n, []string{"Q.NS"})

	if _, err := c.Run(context.Background(), Request{Trigger: TriggerScheduler}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(n.sent) != 0 {
		t.Fatalf("scheduled empty pass sent %+v", n.sent)
	}

	if _, err := c.Run(context.Background(), Request{Trigger: TriggerCommand, ReplyTo: "user"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(n.sent) != 1 || n.sent[0].chatID != "user" || !strings.Contains(n.sent[0].text, "No significant signals") {
		t.Fatalf("sent = %+v", n.sent)
	}
}

func TestRun_DigestGoesToBroadcastAndRequester(t *testing.T) {
	src := &fakeSource{bars: map[string][]model.PriceBar{"Y.NS": oversoldBars()}}
	n := &fakeNotifier{}
	c := newTestCycle(src, &fakeStore{}, n, []string{"Y.NS"})

	if _, err := c.Run(context.Background(), Request{Trigger: TriggerCommand, ReplyTo: "user"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(n.sent) != 2 || n.sent[0].chatID != "broadcast" || n.sent[1].chatID != "user" {
		t.Fatalf("sent = %+v", n.sent)
	}

	n.sent = nil
	if _, err := c.Run(context.Background(), Request{Trigger: TriggerCommand, ReplyTo: "broadcast"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(n.sent) != 1 {
		t.Fatalf("same chat should receive one digest, got %+v", n.sent)
	}
}

func TestRun_PersistFailureStillNotifies(t *testing.T) {
	src := &fakeSource{bars: map[string][]model.PriceBar{"Y.NS": oversoldBars()}}
	n, pub := &fakeNotifier{}, &fakePublisher{}
	c := newTestCycle(src, &fakeStore{err: errors.New("disk full")}, n, []string{"Y.NS"}, WithPublisher("ws", pub))

	signals, err := c.Run(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected persistence error")
	}
	if len(signals) != 1 {
		t.Errorf("signals = %d, want 1", len(signals))
	}
	if len(n.sent) != 1 {
		t.Errorf("digest not delivered: %+v", n.sent)
	}
	if len(pub.batches) != 0 {
		t.Error("unpersisted batch must not be published")
	}
}

func TestRun_PublishersReceiveBatch(t *testing.T) {
	src := &fakeSource{bars: map[string][]model.PriceBar{"Y.NS": oversoldBars()}}
	pub := &fakePublisher{}
	c := newTestCycle(src, &fakeStore{}, &fakeNotifier{}, []string{"Y.NS"}, WithPublisher("ws", pub))

	if _, err := c.Run(context.Background(), Request{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(pub.batches) != 1 || len(pub.batches[0]) != 1 || pub.cycleIDs[0] == "" {
		t.Fatalf("published = %+v ids=%v", pub.batches, pub.cycleIDs)
	}
}

// waitFetched blocks until src has seen at least n fetches.
func waitFetched(t *testing.T, src *fakeSource, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		src.mu.Lock()
		got := len(src.fetched)
		src.mu.Unlock()
		if got >= n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("fetches = %d, want %d", got, n)
		}
		time.Sleep(time.Millisecond)
	}
}

func (n *fakeNotifier) to(chatID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, m := range n.sent {
		if m.chatID == chatID {
			out = append(out, m.text)
		}
	}
	return out
}

func TestRun_SingleFlight(t *testing.T) {
	src := &fakeSource{bars: map[string][]model.PriceBar{"Y.NS": oversoldBars()}, block: make(chan struct{})}
	store := &fakeStore{}
	c := newTestCycle(src, store, &fakeNotifier{}, []string{"Y.NS"})

	first := make(chan error, 1)
	go func() {
		_, err := c.Run(context.Background(), Request{})
		first <- err
	}()
	waitFetched(t, src, 1)

	second := make(chan []model.Signal, 1)
	go func() {
		signals, _ := c.Run(context.Background(), Request{})
		second <- signals
	}()
	time.Sleep(20 * time.Millisecond)

	close(src.block)
	if err := <-first; err != nil {
		t.Fatalf("first run: %v", err)
	}
	if signals := <-second; len(signals) != 1 {
		t.Fatalf("overlapping run got %d signals, want the shared 1", len(signals))
	}
	if len(src.fetched) != 1 || len(store.batches) != 1 {
		t.Errorf("fetched=%v batches=%d, want one pass", src.fetched, len(store.batches))
	}
}

func TestRun_OverlappingRequestReceivesResult(t *testing.T) {
	tests := []struct {
		name     string
		bars     []model.PriceBar
		wantText string
		wantBcst int
	}{
		{"signals", oversoldBars(), "<b>Y</b>", 1},
		{"empty pass", quietBars(), "No significant signals", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{bars: map[string][]model.PriceBar{"Y.NS": tt.bars}, block: make(chan struct{})}
			n := &fakeNotifier{}
			c := newTestCycle(src, &fakeStore{}, n, []string{"Y.NS"})

			scheduled := make(chan error, 1)
			go func() {
				_, err := c.Run(context.Background(), Request{Trigger: TriggerScheduler})
				scheduled <- err
			}()
			waitFetched(t, src, 1)

			requested := make(chan error, 1)
			go func() {
				_, err := c.Run(context.Background(), Request{Trigger: TriggerCommand, ReplyTo: "user-42"})
				requested <- err
			}()
			time.Sleep(20 * time.Millisecond)
			close(src.block)

			if err := <-scheduled; err != nil {
				t.Fatalf("scheduled run: %v", err)
			}
			if err := <-requested; err != nil {
				t.Fatalf("requested run: %v", err)
			}
			got := n.to("user-42")
			if len(got) != 1 || !strings.Contains(got[0], tt.wantText) {
				t.Fatalf("user-42 received %q, want one digest containing %q", got, tt.wantText)
			}
			if b := n.to("broadcast"); len(b) != tt.wantBcst {
				t.Errorf("broadcast received %d, want %d", len(b), tt.wantBcst)
			}
		})
	}
}

func TestRun_ReplyNotifier(t *testing.T) {
	src := &fakeSource{bars: map[string][]model.PriceBar{"Y.NS": oversoldBars()}}
	bcst, replies := &fakeNotifier{}, &fakeNotifier{}
	c := newTestCycle(src, &fakeStore{}, bcst, []string{"Y.NS"}, WithReplyNotifier(replies))

	if _, err := c.Run(context.Background(), Request{Trigger: TriggerCommand, ReplyTo: "user"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(bcst.to("broadcast")) != 1 || len(bcst.to("user")) != 0 {
		t.Errorf("broadcast notifier sent %+v", bcst.sent)
	}
	if len(replies.to("user")) != 1 || len(replies.to("broadcast")) != 0 {
		t.Errorf("reply notifier sent %+v", replies.sent)
	}
}

func TestRun_CrossProcessLock(t *testing.T) {
	src := &fakeSource{bars: map[string][]model.PriceBar{"Y.NS": oversoldBars()}}
	lock := &fakeLock{held: true}
	c := newTestCycle(src, &fakeStore{}, &fakeNotifier{}, []string{"Y.NS"}, WithLock(lock))

	if _, err := c.Run(context.Background(), Request{}); !errors.Is(err, ErrCycleInProgress) {
		t.Fatalf("err = %v, want ErrCycleInProgress", err)
	}
	if len(src.fetched) != 0 {
		t.Error("locked-out cycle must not fetch")
	}

	lock.held = false
	if _, err := c.Run(context.Background(), Request{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if lock.released != 1 {
		t.Errorf("released = %d, want 1", lock.released)
	}
}

func TestRun_CancelledDuringDelay(t *testing.T) {
	src := &fakeSource{bars: map[string][]model.PriceBar{"A.NS": oversoldBars(), "B.NS": oversoldBars()}}
	store, n := &fakeStore{}, &fakeNotifier{}
	engine := strategy.NewEngine(strategy.CoreRules()...)
	c := New(Config{Symbols: []string{"A.NS", "B.NS"}, MinBars: 2, RequestDelay: time.Hour, BroadcastChat: "b"},
		src, engine, store, n)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	signals, err := c.Run(ctx, Request{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(signals) != 1 {
		t.Errorf("partial signals = %d, want 1", len(signals))
	}
	if len(store.batches) != 0 || len(n.sent) != 0 {
		t.Error("cancelled pass must not persist or notify")
	}
}
