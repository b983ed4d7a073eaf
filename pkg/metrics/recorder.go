package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/mendhq/mend/pkg/log"
)

// Event names recorded in the in-memory stream.
const (
	eventTaskStarted = "task_started"
	eventTaskDone    = "task_completed"
	eventFixAttempt  = "fix_attempt"
	eventError       = "error"
)

// maxEvents bounds the in-memory event stream.
const maxEvents = 10000

// PerformanceStats summarizes a single worker's historical performance.
type PerformanceStats struct {
	WorkerID    string        `json:"worker_id"`
	TotalTasks  int           `json:"total_tasks"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	SuccessRate float64       `json:"success_rate"`
	AvgDuration time.Duration `json:"avg_duration"`
	MinDuration time.Duration `json:"min_duration"`
	MaxDuration time.Duration `json:"max_duration"`
	P50         time.Duration `json:"p50"`
	P95         time.Duration `json:"p95"`
	P99         time.Duration `json:"p99"`
}

// ErrorCount is one entry of an error distribution ranking.
type ErrorCount struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// ReportSummary aggregates task activity inside a report window.
type ReportSummary struct {
	TasksStarted   int           `json:"tasks_started"`
	TasksCompleted int           `json:"tasks_completed"`
	TasksSucceeded int           `json:"tasks_succeeded"`
	TasksFailed    int           `json:"tasks_failed"`
	SuccessRate    float64       `json:"success_rate"`
	FixAttempts    int           `json:"fix_attempts"`
	AvgDuration    time.Duration `json:"avg_duration"`
}

// Report is a point-in-time performance report over a trailing window.
type Report struct {
	Period    time.Duration               `json:"period"`
	Start     time.Time                   `json:"start"`
	End       time.Time                   `json:"end"`
	Summary   ReportSummary               `json:"summary"`
	Workers   map[string]PerformanceStats `json:"workers"`
	Errors    map[string]int              `json:"errors"`
	TopErrors []ErrorCount                `json:"top_errors"`
}

// WorkerStatus is a worker's performance plus a coarse health label.
type WorkerStatus struct {
	PerformanceStats
	Status string `json:"status"`
}

// HourlyBucket counts activity inside a single dashboard hour.
type HourlyBucket struct {
	Hour   time.Time `json:"hour"`
	Tasks  int       `json:"tasks"`
	Errors int       `json:"errors"`
	Fixes  int       `json:"fixes"`
}

// Dashboard is a live operational snapshot for the HTTP API.
type Dashboard struct {
	GeneratedAt time.Time               `json:"generated_at"`
	ActiveTasks int                     `json:"active_tasks"`
	TimeSeries  []HourlyBucket          `json:"time_series"`
	Workers     map[string]WorkerStatus `json:"workers"`
	Errors      map[string]int          `json:"errors"`
}

type workerStats struct {
	processed int
	succeeded int
	failed    int
	durations []float64 // seconds
}

type event struct {
	name      string
	at        time.Time
	worker    string
	errorKind string
	success   bool
}

// Recorder tracks task lifecycles and per-worker performance in memory.
// It also feeds the Prometheus metrics for task activity.
type Recorder struct {
	mu      sync.Mutex
	active  map[string]time.Time
	workers map[string]*workerStats
	errors  map[string]int
	events  []event
	now     func() time.Time
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		active:  make(map[string]time.Time),
		workers: make(map[string]*workerStats),
		errors:  make(map[string]int),
		now:     time.Now,
	}
}

func activeKey(taskID, workerID string) string {
	return taskID + "|" + workerID
}

// Start marks the beginning of a task attempt on a worker.
func (r *Recorder) Start(taskID, workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.active[activeKey(taskID, workerID)] = now
	r.appendEvent(event{name: eventTaskStarted, at: now, worker: workerID})
	ActiveTasks.Inc()
}

// End marks the completion of a task attempt. Calling End for a task
// that was never started is logged and ignored.
func (r *Recorder) End(taskID, workerID string, success bool, errorKind string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := activeKey(taskID, workerID)
	started, ok := r.active[key]
	if !ok {
		log.WithComponent("metrics").Warn().
			Str("task_id", taskID).
			Str("worker", workerID).
			Msg("End called for unknown task")
		return 0
	}
	delete(r.active, key)

	now := r.now()
	duration := now.Sub(started)

	ws := r.worker(workerID)
	ws.processed++
	ws.durations = append(ws.durations, duration.Seconds())
	if success {
		ws.succeeded++
	} else {
		ws.failed++
	}

	r.appendEvent(event{name: eventTaskDone, at: now, worker: workerID, success: success})
	if errorKind != "" {
		r.errors[errorKind]++
		r.appendEvent(event{name: eventError, at: now, worker: workerID, errorKind: errorKind})
		ErrorsObservedTotal.WithLabelValues(errorKind).Inc()
	}

	ActiveTasks.Dec()
	FixDurationSeconds.WithLabelValues(workerID).Observe(duration.Seconds())
	FixAttemptsTotal.WithLabelValues(workerID, outcomeLabel(success)).Inc()
	return duration
}

// RecordFixAttempt records a fix attempt that did not go through the
// Start/End lifecycle, such as a cached fix application. A non-empty
// errorKind counts into the error distribution.
func (r *Recorder) RecordFixAttempt(workerID string, success bool, duration time.Duration, errorKind string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	ws := r.worker(workerID)
	ws.processed++
	ws.durations = append(ws.durations, duration.Seconds())
	if success {
		ws.succeeded++
	} else {
		ws.failed++
	}

	r.appendEvent(event{name: eventFixAttempt, at: now, worker: workerID, success: success})
	if errorKind != "" {
		r.errors[errorKind]++
		r.appendEvent(event{name: eventError, at: now, worker: workerID, errorKind: errorKind})
		ErrorsObservedTotal.WithLabelValues(errorKind).Inc()
	}

	FixDurationSeconds.WithLabelValues(workerID).Observe(duration.Seconds())
	FixAttemptsTotal.WithLabelValues(workerID, outcomeLabel(success)).Inc()
}

// ActiveCount returns the number of task attempts currently in flight.
func (r *Recorder) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Performance returns the historical performance of a worker. A worker
// with no recorded attempts yields the zero value.
func (r *Recorder) Performance(workerID string) PerformanceStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.performanceLocked(workerID)
}

func (r *Recorder) performanceLocked(workerID string) PerformanceStats {
	ws, ok := r.workers[workerID]
	if !ok || len(ws.durations) == 0 {
		return PerformanceStats{WorkerID: workerID}
	}

	sorted := make([]float64, len(ws.durations))
	copy(sorted, ws.durations)
	sort.Float64s(sorted)

	var sum float64
	for _, d := range sorted {
		sum += d
	}

	return PerformanceStats{
		WorkerID:    workerID,
		TotalTasks:  ws.processed,
		Succeeded:   ws.succeeded,
		Failed:      ws.failed,
		SuccessRate: float64(ws.succeeded) / float64(ws.processed),
		AvgDuration: seconds(sum / float64(len(sorted))),
		MinDuration: seconds(sorted[0]),
		MaxDuration: seconds(sorted[len(sorted)-1]),
		P50:         seconds(percentile(sorted, 50)),
		P95:         seconds(percentile(sorted, 95)),
		P99:         seconds(percentile(sorted, 99)),
	}
}

// Report builds a performance report for the window ending at asOf.
func (r *Recorder) Report(period time.Duration, asOf time.Time) Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := asOf.Add(-period)
	rep := Report{
		Period:  period,
		Start:   start,
		End:     asOf,
		Workers: make(map[string]PerformanceStats),
		Errors:  make(map[string]int),
	}

	var durations []float64
	for _, ev := range r.events {
		if ev.at.Before(start) || ev.at.After(asOf) {
			continue
		}
		switch ev.name {
		case eventTaskStarted:
			rep.Summary.TasksStarted++
		case eventTaskDone:
			rep.Summary.TasksCompleted++
			if ev.success {
				rep.Summary.TasksSucceeded++
			} else {
				rep.Summary.TasksFailed++
			}
		case eventFixAttempt:
			rep.Summary.FixAttempts++
		case eventError:
			rep.Errors[ev.errorKind]++
		}
	}
	if rep.Summary.TasksCompleted > 0 {
		rep.Summary.SuccessRate = float64(rep.Summary.TasksSucceeded) / float64(rep.Summary.TasksCompleted)
	}

	for id, ws := range r.workers {
		stats := r.performanceLocked(id)
		rep.Workers[id] = stats
		if ws.processed > 0 {
			durations = append(durations, stats.AvgDuration.Seconds())
		}
	}
	if len(durations) > 0 {
		var sum float64
		for _, d := range durations {
			sum += d
		}
		rep.Summary.AvgDuration = seconds(sum / float64(len(durations)))
	}

	rep.TopErrors = topErrors(rep.Errors, 5)
	return rep
}

// DashboardAt builds a dashboard snapshot with hourly activity buckets
// covering the 24 hours ending at asOf.
func (r *Recorder) DashboardAt(asOf time.Time) Dashboard {
	r.mu.Lock()
	defer r.mu.Unlock()

	dash := Dashboard{
		GeneratedAt: asOf,
		ActiveTasks: len(r.active),
		Workers:     make(map[string]WorkerStatus),
		Errors:      make(map[string]int),
	}
	for kind, count := range r.errors {
		dash.Errors[kind] = count
	}

	// 24 hourly buckets, oldest first.
	end := asOf.Truncate(time.Hour).Add(time.Hour)
	buckets := make([]HourlyBucket, 24)
	for i := range buckets {
		buckets[i].Hour = end.Add(time.Duration(i-24) * time.Hour)
	}
	for _, ev := range r.events {
		if ev.at.Before(buckets[0].Hour) || !ev.at.Before(end) {
			continue
		}
		idx := 23 - int((end.Sub(ev.at)-time.Nanosecond)/time.Hour)
		if idx < 0 || idx > 23 {
			continue
		}
		switch ev.name {
		case eventTaskStarted:
			buckets[idx].Tasks++
		case eventError:
			buckets[idx].Errors++
		case eventFixAttempt:
			buckets[idx].Fixes++
		}
	}
	dash.TimeSeries = buckets

	for id := range r.workers {
		stats := r.performanceLocked(id)
		dash.Workers[id] = WorkerStatus{
			PerformanceStats: stats,
			Status:           classifyWorker(stats),
		}
	}
	return dash
}

// Dashboard builds a dashboard snapshot as of now.
func (r *Recorder) Dashboard() Dashboard {
	return r.DashboardAt(r.now())
}

// TopErrors returns the most frequent error kinds seen so far.
func (r *Recorder) TopErrors(limit int) []ErrorCount {
	r.mu.Lock()
	defer r.mu.Unlock()
	return topErrors(r.errors, limit)
}

func (r *Recorder) worker(workerID string) *workerStats {
	ws, ok := r.workers[workerID]
	if !ok {
		ws = &workerStats{}
		r.workers[workerID] = ws
	}
	return ws
}

func (r *Recorder) appendEvent(ev event) {
	r.events = append(r.events, ev)
	if len(r.events) > maxEvents {
		r.events = r.events[len(r.events)-maxEvents:]
	}
}

// classifyWorker maps a worker's success rate to a status label.
func classifyWorker(stats PerformanceStats) string {
	switch {
	case stats.TotalTasks == 0:
		return "idle"
	case stats.SuccessRate >= 0.95:
		return "excellent"
	case stats.SuccessRate >= 0.80:
		return "good"
	case stats.SuccessRate >= 0.60:
		return "fair"
	default:
		return "poor"
	}
}

// percentile computes the p-th percentile of a sorted sample using
// linear interpolation between the two nearest ranks.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := float64(len(sorted)-1) * p / 100
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if lower == upper {
		return sorted[lower]
	}
	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

func topErrors(counts map[string]int, limit int) []ErrorCount {
	ranked := make([]ErrorCount, 0, len(counts))
	for kind, count := range counts {
		ranked = append(ranked, ErrorCount{Kind: kind, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Kind < ranked[j].Kind
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
