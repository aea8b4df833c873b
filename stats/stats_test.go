package stats_test

import (
	"strings"
	"testing"

	"github.com/matthutchison/cryoempipe/stats"
	"github.com/matthutchison/cryoempipe/xact"
)

func TestSetItemsInStateGathersExpectedSample(t *testing.T) {
	r := stats.New()
	r.SetItemsInState(xact.Compressing, 4)

	families, err := r.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() != "cryoempipe_items_in_state" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lbl := range m.GetLabel() {
				if lbl.GetName() == "state" && lbl.GetValue() == "compressing" && m.GetGauge().GetValue() == 4 {
					found = true
				}
			}
		}
	}
	if !found {
		t.Fatal("expected to find items_in_state{state=compressing} == 4")
	}
}

func TestIncRetryAccumulates(t *testing.T) {
	r := stats.New()
	r.IncRetry(xact.Importing)
	r.IncRetry(xact.Importing)

	families, _ := r.Gatherer().Gather()
	for _, mf := range families {
		if mf.GetName() != "cryoempipe_state_retries_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			if m.GetCounter().GetValue() == 2 {
				return
			}
		}
	}
	t.Fatal("expected state_retries_total to have accumulated to 2")
}

func TestObserveTransferTracksFailures(t *testing.T) {
	r := stats.New()
	r.ObserveTransfer(false, 1.5)

	families, _ := r.Gatherer().Gather()
	var sawRuns, sawFailures bool
	for _, mf := range families {
		switch mf.GetName() {
		case "cryoempipe_transfer_runs_total":
			sawRuns = mf.GetMetric()[0].GetCounter().GetValue() == 1
		case "cryoempipe_transfer_failures_total":
			sawFailures = mf.GetMetric()[0].GetCounter().GetValue() == 1
		}
	}
	if !sawRuns || !sawFailures {
		t.Fatalf("runs=%v failures=%v, want both true", sawRuns, sawFailures)
	}
}

func TestMetricNamesUseCryoempipeNamespace(t *testing.T) {
	r := stats.New()
	families, _ := r.Gatherer().Gather()
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "cryoempipe_") {
			t.Fatalf("metric %s missing cryoempipe_ namespace", mf.GetName())
		}
	}
}
