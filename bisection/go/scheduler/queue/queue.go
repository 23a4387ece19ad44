// Package queue holds the per-configuration FIFO of bisection jobs and the
// transitions allowed on it. Everything here is pure; persistence and
// atomicity belong to the scheduler store.
package queue

import (
	"time"
)

// Status of a queued job.
type Status string

const (
	Queued    Status = "Queued"
	Running   Status = "Running"
	Done      Status = "Done"
	Cancelled Status = "Cancelled"
)

// Terminal returns true for Done and Cancelled.
func (s Status) Terminal() bool {
	return s == Done || s == Cancelled
}

// DefaultWaitTimeSamples is the capacity of the wait time reservoir.
const DefaultWaitTimeSamples = 50

// Element is one job in a ConfigurationQueue.
type Element struct {
	JobID       string    `json:"job_id" firestore:"job_id"`
	EnqueueTime time.Time `json:"enqueue_time" firestore:"enqueue_time"`
	Status      Status    `json:"status" firestore:"status"`
}

// WaitTime records when a job was enqueued and when it completed.
type WaitTime struct {
	EnqueueTime  time.Time `json:"enqueue_time" firestore:"enqueue_time"`
	CompleteTime time.Time `json:"complete_time" firestore:"complete_time"`
}

// Duration is CompleteTime - EnqueueTime.
func (w WaitTime) Duration() time.Duration {
	return w.CompleteTime.Sub(w.EnqueueTime)
}

// ConfigurationQueue is the FIFO for one configuration. At most one Element
// is Running.
type ConfigurationQueue struct {
	Configuration   string     `json:"configuration" firestore:"configuration"`
	Elements        []Element  `json:"elements" firestore:"elements"`
	WaitTimeSamples []WaitTime `json:"wait_time_samples" firestore:"wait_time_samples"`

	// Version is incremented on every write and used by optimistic stores.
	Version int64 `json:"version" firestore:"version"`
}

// New returns an empty queue.
func New(configuration string) *ConfigurationQueue {
	return &ConfigurationQueue{
		Configuration:   configuration,
		Elements:        []Element{},
		WaitTimeSamples: []WaitTime{},
	}
}

// Copy returns a deep copy of q.
func (q *ConfigurationQueue) Copy() *ConfigurationQueue {
	rv := &ConfigurationQueue{
		Configuration:   q.Configuration,
		Elements:        append([]Element{}, q.Elements...),
		WaitTimeSamples: append([]WaitTime{}, q.WaitTimeSamples...),
		Version:         q.Version,
	}
	return rv
}

func (q *ConfigurationQueue) find(jobID string) int {
	for i, e := range q.Elements {
		if e.JobID == jobID {
			return i
		}
	}
	return -1
}

// Find returns the element for jobID.
func (q *ConfigurationQueue) Find(jobID string) (Element, bool) {
	if i := q.find(jobID); i >= 0 {
		return q.Elements[i], true
	}
	return Element{}, false
}

// Enqueue appends a Queued element.
func (q *ConfigurationQueue) Enqueue(jobID string, now time.Time) {
	q.Elements = append(q.Elements, Element{
		JobID:       jobID,
		EnqueueTime: now,
		Status:      Queued,
	})
}

// PruneTerminal drops leading Done and Cancelled elements.
func (q *ConfigurationQueue) PruneTerminal() {
	i := 0
	for i < len(q.Elements) && q.Elements[i].Status.Terminal() {
		i++
	}
	q.Elements = q.Elements[i:]
}

// Pick returns the running job if there is one. Otherwise it prunes leading
// terminal elements and promotes the new head if it is Queued. The bool is
// false if no job is running afterwards. changed reports whether q was
// modified.
func (q *ConfigurationQueue) Pick() (e Element, ok bool, changed bool) {
	if len(q.Elements) == 0 {
		return Element{}, false, false
	}
	if q.Elements[0].Status == Running {
		return q.Elements[0], true, false
	}
	before := len(q.Elements)
	q.PruneTerminal()
	changed = len(q.Elements) != before
	if len(q.Elements) == 0 {
		return Element{}, false, changed
	}
	switch q.Elements[0].Status {
	case Running:
		return q.Elements[0], true, changed
	case Queued:
		q.Elements[0].Status = Running
		return q.Elements[0], true, true
	}
	return Element{}, false, changed
}

// Cancel moves a Queued or Running element to Cancelled. Returns false if the
// job is unknown or already terminal.
func (q *ConfigurationQueue) Cancel(jobID string) bool {
	i := q.find(jobID)
	if i < 0 || q.Elements[i].Status.Terminal() {
		return false
	}
	q.Elements[i].Status = Cancelled
	return true
}

// Complete moves a Running element to Done and records its wait time,
// keeping at most maxSamples samples. Leading terminal elements are pruned
// first. Returns false if the job was not Running.
func (q *ConfigurationQueue) Complete(jobID string, now time.Time, maxSamples int) bool {
	q.PruneTerminal()
	i := q.find(jobID)
	if i < 0 || q.Elements[i].Status != Running {
		return false
	}
	q.Elements[i].Status = Done
	q.WaitTimeSamples = append(q.WaitTimeSamples, WaitTime{
		EnqueueTime:  q.Elements[i].EnqueueTime,
		CompleteTime: now,
	})
	if maxSamples <= 0 {
		maxSamples = DefaultWaitTimeSamples
	}
	if over := len(q.WaitTimeSamples) - maxSamples; over > 0 {
		q.WaitTimeSamples = append([]WaitTime{}, q.WaitTimeSamples[over:]...)
	}
	return true
}

// Remove strikes the element regardless of status. Returns false if the job
// is unknown.
func (q *ConfigurationQueue) Remove(jobID string) bool {
	i := q.find(jobID)
	if i < 0 {
		return false
	}
	q.Elements = append(q.Elements[:i:i], q.Elements[i+1:]...)
	return true
}

// Stats is a snapshot of a queue.
type Stats struct {
	Configuration   string
	QueuedJobs      int
	RunningJobs     int
	WaitTimeSamples []WaitTime
}

// Stats counts the elements in q.
func (q *ConfigurationQueue) Stats() Stats {
	rv := Stats{
		Configuration:   q.Configuration,
		WaitTimeSamples: append([]WaitTime{}, q.WaitTimeSamples...),
	}
	for _, e := range q.Elements {
		switch e.Status {
		case Queued:
			rv.QueuedJobs++
		case Running:
			rv.RunningJobs++
		}
	}
	return rv
}
