package job_test

import (
	"context"
	"testing"

	"github.com/xraph/mediaq/job"
)

func TestReportProgress(t *testing.T) {
	var gotPct int
	var gotMsg string
	ctx := job.WithReporter(context.Background(), job.ReporterFunc(func(pct int, msg string) {
		gotPct, gotMsg = pct, msg
	}))

	job.ReportProgress(ctx, 150, "Transcribing")
	if gotPct != 100 || gotMsg != "Transcribing" {
		t.Errorf("got (%d, %q), want (100, %q)", gotPct, gotMsg, "Transcribing")
	}

	job.ReportProgress(ctx, -5, "")
	if gotPct != 0 {
		t.Errorf("negative progress should clamp to 0, got %d", gotPct)
	}
}

func TestReportProgress_NoReporter(t *testing.T) {
	// Must not panic outside a worker.
	job.ReportProgress(context.Background(), 50, "ignored")
}
