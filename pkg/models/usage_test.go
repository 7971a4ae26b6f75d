package models

import "testing"

func TestBudgetConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     BudgetConfig
		wantErr bool
	}{
		{"ascending thresholds", BudgetConfig{Thresholds: []float64{50, 75, 90, 100}}, false},
		{"no thresholds", BudgetConfig{}, false},
		{"descending thresholds", BudgetConfig{Thresholds: []float64{90, 50}}, true},
		{"duplicate thresholds", BudgetConfig{Thresholds: []float64{50, 50}}, true},
		{"zero threshold", BudgetConfig{Thresholds: []float64{0, 50}}, true},
		{"negative cap", BudgetConfig{MonthlyCap: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestProjectBudget_Remaining(t *testing.T) {
	p := ProjectBudget{TotalBudget: 100, Spent: 40}
	if got := p.Remaining(); got != 60 {
		t.Errorf("Remaining() = %v, want 60", got)
	}
	p.Spent = 150
	if got := p.Remaining(); got != 0 {
		t.Errorf("Remaining() over budget = %v, want 0", got)
	}
}

func TestProjectBudget_HasFired(t *testing.T) {
	p := ProjectBudget{FiredAlerts: []string{"project:x:all:50"}}
	if !p.HasFired("project:x:all:50") {
		t.Error("expected alert to be marked fired")
	}
	if p.HasFired("project:x:all:75") {
		t.Error("unexpected fired alert")
	}
}

func TestWorker_ClearTask(t *testing.T) {
	w := Worker{CurrentTaskID: "t1", Description: "d", AssignedModel: "m", TasksCompleted: 3}
	w.ClearTask()
	if w.CurrentTaskID != "" || w.Description != "" || w.AssignedModel != "" {
		t.Errorf("ClearTask left fields set: %+v", w)
	}
	if w.TasksCompleted != 3 {
		t.Error("ClearTask must not touch TasksCompleted")
	}
}
