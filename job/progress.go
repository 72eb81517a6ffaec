package job

import "context"

// Reporter receives progress updates from a running processor.
type Reporter interface {
	Report(pct int, message string)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(pct int, message string)

// Report calls f.
func (f ReporterFunc) Report(pct int, message string) { f(pct, message) }

type reporterKey struct{}

// WithReporter returns a context carrying r.
func WithReporter(ctx context.Context, r Reporter) context.Context {
	return context.WithValue(ctx, reporterKey{}, r)
}

// ReportProgress records progress for the job executing under ctx. It is a
// no-op outside a worker. The value is clamped to [0, 100] and never moves
// the stored progress backwards.
func ReportProgress(ctx context.Context, pct int, message string) {
	r, ok := ctx.Value(reporterKey{}).(Reporter)
	if !ok || r == nil {
		return
	}
	r.Report(ClampProgress(pct), message)
}

// ClampProgress bounds pct to [0, 100].
func ClampProgress(pct int) int {
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}
