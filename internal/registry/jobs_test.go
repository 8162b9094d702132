package registry

import (
	"context"
	"testing"
	"time"
)

func TestEnqueueAndClaim(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := mustCreate(t, store, "doc", "archivist")

	job, err := store.Enqueue(ctx, "process_single", doc.ID, `{"document_id":1}`)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if job.State != JobPending || job.Attempts != 0 {
		t.Fatalf("new job = %+v", job)
	}

	claimed, err := store.ClaimNextJob(ctx)
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatalf("claimed = %+v, want job %d", claimed, job.ID)
	}
	if claimed.State != JobRunning {
		t.Fatalf("state = %s, want running", claimed.State)
	}
	if claimed.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", claimed.Attempts)
	}
	if claimed.LastHeartbeat == nil {
		t.Fatal("claim must stamp a heartbeat")
	}

	again, err := store.ClaimNextJob(ctx)
	if err != nil {
		t.Fatalf("ClaimNextJob drained: %v", err)
	}
	if again != nil {
		t.Fatalf("claimed %+v from an empty queue", again)
	}
}

func TestClaimOrderIsOldestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := mustCreate(t, store, "doc", "archivist")

	first, err := store.Enqueue(ctx, "process_single", doc.ID, "{}")
	if err != nil {
		t.Fatalf("Enqueue first: %v", err)
	}
	if _, err := store.Enqueue(ctx, "merge", doc.ID, "{}"); err != nil {
		t.Fatalf("Enqueue second: %v", err)
	}

	claimed, err := store.ClaimNextJob(ctx)
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if claimed.ID != first.ID {
		t.Fatalf("claimed job %d, want oldest %d", claimed.ID, first.ID)
	}
}

func TestFinishJobRequiresRunning(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := mustCreate(t, store, "doc", "archivist")

	job, err := store.Enqueue(ctx, "process_single", doc.ID, "{}")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := store.FinishJob(ctx, job.ID, JobDone, ""); err == nil {
		t.Fatal("expected error finishing a pending job")
	}

	if _, err := store.ClaimNextJob(ctx); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := store.FinishJob(ctx, job.ID, JobFailed, "engine exited 2"); err != nil {
		t.Fatalf("FinishJob: %v", err)
	}

	finished, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if finished.State != JobFailed || finished.ErrorMessage != "engine exited 2" {
		t.Fatalf("finished = %+v", finished)
	}
	if finished.LastHeartbeat != nil {
		t.Fatal("finish must clear the heartbeat")
	}
}

func TestReclaimStaleJobs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := mustCreate(t, store, "doc", "archivist")

	job, err := store.Enqueue(ctx, "process_single", doc.ID, "{}")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := store.ClaimNextJob(ctx); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}

	// A cutoff in the past leaves the fresh heartbeat alone.
	reclaimed, err := store.ReclaimStaleJobs(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ReclaimStaleJobs: %v", err)
	}
	if len(reclaimed) != 0 {
		t.Fatalf("reclaimed fresh job: %v", reclaimed)
	}

	// A cutoff in the future makes every running heartbeat stale.
	reclaimed, err = store.ReclaimStaleJobs(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("ReclaimStaleJobs: %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0] != job.ID {
		t.Fatalf("reclaimed = %v, want [%d]", reclaimed, job.ID)
	}

	back, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if back.State != JobPending {
		t.Fatalf("state = %s, want pending", back.State)
	}

	claimed, err := store.ClaimNextJob(ctx)
	if err != nil {
		t.Fatalf("ClaimNextJob after reclaim: %v", err)
	}
	if claimed == nil || claimed.ID != job.ID {
		t.Fatal("reclaimed job not claimable")
	}
	if claimed.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2 after reclaim", claimed.Attempts)
	}
}

func TestJobHeartbeatKeepsJobAlive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := mustCreate(t, store, "doc", "archivist")

	if _, err := store.Enqueue(ctx, "process_single", doc.ID, "{}"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	job, err := store.ClaimNextJob(ctx)
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	before := *job.LastHeartbeat

	time.Sleep(5 * time.Millisecond)
	if err := store.JobHeartbeat(ctx, job.ID); err != nil {
		t.Fatalf("JobHeartbeat: %v", err)
	}

	refreshed, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if !refreshed.LastHeartbeat.After(before) {
		t.Fatalf("heartbeat not advanced: %v -> %v", before, refreshed.LastHeartbeat)
	}
}

func TestJobsForDocumentAndStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	doc := mustCreate(t, store, "doc", "archivist")
	other := mustCreate(t, store, "other", "archivist")

	if _, err := store.Enqueue(ctx, "process_single", doc.ID, "{}"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := store.Enqueue(ctx, "rebuild_pdf", doc.ID, "{}"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := store.Enqueue(ctx, "process_single", other.ID, "{}"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	jobs, err := store.JobsForDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("JobsForDocument: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}

	if _, err := store.ClaimNextJob(ctx); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	stats, err := store.JobStats(ctx)
	if err != nil {
		t.Fatalf("JobStats: %v", err)
	}
	if stats[JobPending] != 2 || stats[JobRunning] != 1 {
		t.Fatalf("stats = %v", stats)
	}
}
