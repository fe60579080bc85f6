package store

import (
	"fmt"
	"testing"
	"time"
)

func TestRecordAndListRuns(t *testing.T) {
	st := openTestStore(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := range 5 {
		run := ProbeRun{
			ID:         fmt.Sprintf("run-%d", i),
			Status:     RunOK,
			Devices:    i,
			DurationMS: 12.5,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if i == 3 {
			run.Status = RunFailed
			run.Error = "lsblk: exit status 1"
		}
		if err := st.RecordRun(t.Context(), run); err != nil {
			t.Fatalf("RecordRun(%d) error = %v", i, err)
		}
	}

	all, err := st.ListRuns(t.Context(), RunFilter{})
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if all.Total != 5 || len(all.Runs) != 5 || all.Limit != defaultRunLimit {
		t.Fatalf("ListRuns() = total %d, %d runs, limit %d", all.Total, len(all.Runs), all.Limit)
	}
	if all.Runs[0].ID != "run-4" || !all.Runs[0].StartedAt.Equal(base.Add(4*time.Minute)) {
		t.Errorf("newest run = %+v", all.Runs[0])
	}

	failed, err := st.ListRuns(t.Context(), RunFilter{Status: RunFailed})
	if err != nil {
		t.Fatalf("ListRuns(failed) error = %v", err)
	}
	if failed.Total != 1 || failed.Runs[0].Error != "lsblk: exit status 1" {
		t.Errorf("failed runs = %+v", failed)
	}

	page, err := st.ListRuns(t.Context(), RunFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListRuns(page) error = %v", err)
	}
	if page.Total != 5 || len(page.Runs) != 2 || page.Runs[0].ID != "run-3" {
		t.Errorf("page = %+v", page)
	}

	capped, err := st.ListRuns(t.Context(), RunFilter{Limit: 1000, Offset: -3})
	if err != nil {
		t.Fatalf("ListRuns(capped) error = %v", err)
	}
	if capped.Limit != maxRunLimit || capped.Offset != 0 {
		t.Errorf("capped limit/offset = %d/%d", capped.Limit, capped.Offset)
	}
}

func TestRecordRun_Errors(t *testing.T) {
	st := openTestStore(t)
	if err := st.RecordRun(t.Context(), ProbeRun{Status: RunOK}); err == nil {
		t.Error("RecordRun() without id succeeded")
	}
	if err := st.RecordRun(t.Context(), ProbeRun{ID: "x", Status: "weird"}); err == nil {
		t.Error("RecordRun() with invalid status succeeded")
	}

	run := ProbeRun{ID: "dup", Status: RunOK}
	if err := st.RecordRun(t.Context(), run); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}
	if err := st.RecordRun(t.Context(), run); err == nil {
		t.Error("RecordRun() with duplicate id succeeded")
	}
}
