package office

import (
	"context"
	"errors"
	"testing"

	"github.com/ShayCichocki/agentdesk/pkg/models"
)

func testManager(rec *eventRecorder) *Manager {
	cfg := ManagerConfig{
		Rosters: map[string][]string{
			"coding": {"a", "b"},
			"qa":     {"c"},
		},
	}
	if rec != nil {
		cfg.OnStatus = rec.record
	}
	return NewManager(cfg)
}

func TestManager_UnknownOffice(t *testing.T) {
	m := testManager(nil)
	defer m.Close()

	id, ticket, err := m.AssignTask("marketing", Task{ID: "x"})
	if !errors.Is(err, ErrUnknownOffice) {
		t.Errorf("err = %v, want ErrUnknownOffice", err)
	}
	if id != "" || ticket != nil {
		t.Errorf("unknown office should return nothing, got %q %v", id, ticket)
	}
	if _, err := m.Status("marketing"); !errors.Is(err, ErrUnknownOffice) {
		t.Errorf("Status err = %v, want ErrUnknownOffice", err)
	}
}

func TestManager_RoutesAndFansOut(t *testing.T) {
	rec := &eventRecorder{}
	m := testManager(rec)
	defer m.Close()

	id, ticket, err := m.AssignTask("qa", Task{ID: "t1", Run: func(ctx context.Context, w models.Worker) (string, error) {
		return w.Office, nil
	}})
	if err != nil {
		t.Fatalf("AssignTask: %v", err)
	}
	if id == "" {
		t.Fatal("expected a worker id")
	}
	text, err := waitTicket(t, ticket)
	if err != nil || text != "qa" {
		t.Errorf("result = %q, %v", text, err)
	}

	completed := rec.ofType(EventTaskCompleted)
	if len(completed) != 1 || completed[0].Office != "qa" {
		t.Errorf("fan-out events = %+v", completed)
	}
}

func TestManager_GetAllStatusAndReset(t *testing.T) {
	m := testManager(nil)
	defer m.Close()

	release := make(chan struct{})
	defer close(release)
	m.AssignTask("coding", gatedTask("t1", release, "", nil))
	m.AssignTask("coding", gatedTask("t2", release, "", nil))
	m.AssignTask("coding", gatedTask("t3", release, "", nil))

	all := m.GetAllStatus()
	if len(all) != 2 {
		t.Fatalf("GetAllStatus returned %d offices, want 2", len(all))
	}
	if all["coding"].Working != 2 || all["coding"].Queued != 1 {
		t.Errorf("coding status = %+v", all["coding"])
	}
	if all["qa"].Idle != 1 {
		t.Errorf("qa status = %+v", all["qa"])
	}

	m.ResetAllWorkers()
	for office, st := range m.GetAllStatus() {
		if st.Idle != st.Size || st.Queued != 0 {
			t.Errorf("%s after reset = %+v", office, st)
		}
	}
}

func TestManager_Offices(t *testing.T) {
	m := testManager(nil)
	defer m.Close()

	got := m.Offices()
	if len(got) != 2 || got[0] != "coding" || got[1] != "qa" {
		t.Errorf("Offices() = %v", got)
	}
}
