package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-vacuumzones/internal/vacuum"
)

// value returns the value of the counter or gauge name whose labels
// include every pair in labels.
func value(t *testing.T, r *Recorder, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := r.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			got := make(map[string]string)
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue metrics
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			if g := m.GetGauge(); g != nil {
				return g.GetValue()
			}
			if h := m.GetHistogram(); h != nil {
				return float64(h.GetSampleCount())
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func TestRecorder(t *testing.T) {
	r := New("test")
	const master vacuum.MasterID = "vacuum.s7"

	r.StartAccepted(master)
	r.StartAccepted(master)
	r.StartRejected(master, "cleaning")
	r.PendingRooms(master, 2)
	r.BatchCleared(master, 2)
	r.CommandSent(master, vacuum.KindSegmentClean, 2, nil, 150*time.Millisecond)
	r.CommandSent(master, vacuum.KindStop, 0, errors.New("ack timeout"), 10*time.Second)

	tests := []struct {
		name   string
		metric string
		labels map[string]string
		want   float64
	}{
		{"accepted starts", "graylogic_vacuumzones_start_requests_total", map[string]string{"result": "accepted"}, 2},
		{"rejected starts", "graylogic_vacuumzones_start_requests_total", map[string]string{"result": "cleaning"}, 1},
		{"pending rooms", "graylogic_vacuumzones_pending_rooms", map[string]string{"master_id": "vacuum.s7"}, 2},
		{"cleared batches", "graylogic_vacuumzones_batches_cleared_total", nil, 1},
		{"dropped rooms", "graylogic_vacuumzones_dropped_rooms_total", nil, 2},
		{"acknowledged", "graylogic_vacuumzones_commands_total", map[string]string{"kind": "segment_clean", "status": "acknowledged"}, 1},
		{"failed", "graylogic_vacuumzones_commands_total", map[string]string{"kind": "stop", "status": "failed"}, 1},
		{"batch sizes observed", "graylogic_vacuumzones_batch_rooms", nil, 1},
		{"build info", "graylogic_vacuumzones_build_info", map[string]string{"version": "test"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := value(t, r, tt.metric, tt.labels); got != tt.want {
				t.Errorf("%s = %v, want %v", tt.metric, got, tt.want)
			}
		})
	}
}

func TestHandler(t *testing.T) {
	r := New("test")
	r.StartAccepted("vacuum.s7")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(string(body), `graylogic_vacuumzones_start_requests_total{master_id="vacuum.s7",result="accepted"} 1`) {
		t.Errorf("exposition missing start counter:\n%s", body)
	}
}
