package metrics

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestGroupMetrics_Registration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGroupMetricsWithRegistry(reg)

	m.RecordRebalance(0.05, true)
	m.SetClaimed(3)
	m.RecordFetch(FetchMessages, 10)
	m.RecordCommit(true)
	m.RecordOp("create", 0.001, true)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	expected := map[string]bool{
		"covey_group_rebalances_total":                  false,
		"covey_group_rebalance_duration_seconds":        false,
		"covey_group_claimed_partitions":                false,
		"covey_group_fetches_total":                     false,
		"covey_group_messages_total":                    false,
		"covey_group_commits_total":                     false,
		"covey_coordinator_operation_latency_seconds":   false,
	}
	for _, mf := range mfs {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("expected metric %s to be registered", name)
		}
	}
}

func TestGroupMetrics_Values(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGroupMetricsWithRegistry(reg)

	m.SetClaimed(2)
	if got := testutil.ToFloat64(m.ClaimedPartitions); got != 2 {
		t.Errorf("claimed_partitions = %v, want 2", got)
	}

	m.RecordFetch(FetchMessages, 5)
	m.RecordFetch(FetchMessages, 3)
	m.RecordFetch(FetchUnclaimed, 0)
	if got := testutil.ToFloat64(m.MessagesTotal); got != 8 {
		t.Errorf("messages_total = %v, want 8", got)
	}
	if got := testutil.ToFloat64(m.FetchesTotal.WithLabelValues(FetchMessages)); got != 2 {
		t.Errorf("fetches_total{messages} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.FetchesTotal.WithLabelValues(FetchUnclaimed)); got != 1 {
		t.Errorf("fetches_total{unclaimed} = %v, want 1", got)
	}

	m.RecordCommit(true)
	m.RecordCommit(false)
	if got := testutil.ToFloat64(m.CommitsTotal.WithLabelValues("failure")); got != 1 {
		t.Errorf("commits_total{failure} = %v, want 1", got)
	}
}

func TestServer_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGroupMetricsWithRegistry(reg)
	m.SetClaimed(1)

	srv := NewServerWithRegistry("127.0.0.1:0", reg)
	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start metrics server: %v", err)
	}
	defer srv.Stop(t.Context())

	client := http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if want := "covey_group_claimed_partitions 1"; !strings.Contains(string(body), want) {
		t.Errorf("scrape output missing %q", want)
	}
}
