package monitor

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/starford/lorekeeper/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestMonitor(t *testing.T, opts ...Option) (*Monitor, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.Local)}
	opts = append([]Option{WithClock(c.now)}, opts...)
	return New(DefaultConfig(), testutil.Logger(), opts...), c
}

func TestTopCommands(t *testing.T) {
	m, _ := newTestMonitor(t)
	for _, cmd := range []string{"ask", "ask", "ask", "quiz", "help", "help", ""} {
		m.TrackMessage(cmd)
	}
	want := []CommandCount{{"ask", 3}, {"help", 2}}
	if diff := cmp.Diff(want, m.TopCommands(2)); diff != "" {
		t.Errorf("TopCommands (-want +got):\n%s", diff)
	}
	if got := m.Status().Messages; got != 7 {
		t.Errorf("messages = %d, want 7", got)
	}
}

func TestHealth(t *testing.T) {
	m, c := newTestMonitor(t)

	if h := m.Health(c.now()); !h.Healthy {
		t.Errorf("fresh monitor unhealthy: %+v", h)
	}

	for i := 0; i < 10; i++ {
		m.TrackMessage("ask")
	}
	m.TrackError("ask", errors.New("boom"))
	if h := m.Health(c.now()); h.Healthy || h.ErrorRateHealthy {
		t.Errorf("10%% error rate should be unhealthy: %+v", h)
	}

	m2, c2 := newTestMonitor(t)
	m2.TrackMessage("ask")
	c2.t = c2.t.Add(6 * time.Minute)
	if h := m2.Health(c2.now()); h.RecentActivity || h.Healthy {
		t.Errorf("stale activity should be unhealthy: %+v", h)
	}
}

func TestTrackUsage_CostsAndLedger(t *testing.T) {
	m, c := newTestMonitor(t, WithLedger(testutil.TestLedger(t)))
	ctx := context.Background()

	// 1000 in, 100 out: 0.015 + 0.0075
	m.TrackUsage(ctx, "model-a", "ask", 1000, 100)
	c.t = c.t.AddDate(0, 0, 1)
	m.TrackUsage(ctx, "model-a", "quiz", 2000, 0)

	costs := m.Costs(ctx)
	if costs.Total.Requests != 2 || costs.Total.Tokens != 3100 {
		t.Errorf("total = %+v", costs.Total)
	}
	if math.Abs(costs.Yesterday.Cost-0.0225) > 1e-9 {
		t.Errorf("yesterday cost = %v, want 0.0225", costs.Yesterday.Cost)
	}
	if math.Abs(costs.Today.Cost-0.03) > 1e-9 {
		t.Errorf("today cost = %v, want 0.03", costs.Today.Cost)
	}
	if costs.Ledger == nil || costs.Ledger.Calls != 2 {
		t.Errorf("ledger = %+v", costs.Ledger)
	}
}

func TestCountersAndStatus(t *testing.T) {
	m, _ := newTestMonitor(t)
	m.TrackProfileSwitch("locked-down", "casual")
	m.TrackUpload("faq.json", true, "file_1")
	m.TrackUpload("lore.json", false, "")

	st := m.Status()
	if st.ProfileSwitches != 1 || st.Uploads != 1 || st.UploadFailures != 1 {
		t.Errorf("status = %+v", st)
	}
	if st.Uptime != "0s" {
		t.Errorf("uptime = %q", st.Uptime)
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{4 * time.Second, "4s"},
		{3*time.Minute + 4*time.Second, "3m 4s"},
		{2*time.Hour + 3*time.Minute, "2h 3m"},
		{26*time.Hour + 3*time.Minute, "1d 2h 3m"},
	}
	for _, tt := range tests {
		if got := FormatUptime(tt.d); got != tt.want {
			t.Errorf("FormatUptime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FlushInterval = 10 * time.Millisecond
	m := New(cfg, testutil.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
