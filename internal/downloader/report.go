package downloader

// Report is the per-scene outcome of a Download call. Partial completion is
// a normal result: the caller inspects each task's terminal state rather
// than receiving a single aggregate error.
type Report struct {
	// Tasks is keyed by scene entity id, independent of completion order.
	Tasks map[string]*Task

	// Order holds the entity ids in the order they were requested.
	Order []string

	// Counters by terminal state. Skipped tasks also count as Completed.
	Completed int
	Failed    int
	Cancelled int
	Skipped   int
}

func newReport(scenes []Scene) *Report {
	r := &Report{Tasks: make(map[string]*Task, len(scenes))}
	for _, s := range scenes {
		if _, ok := r.Tasks[s.EntityID]; ok {
			continue // duplicate scene ids collapse onto one task
		}
		r.Tasks[s.EntityID] = &Task{Scene: s, State: StatePending}
		r.Order = append(r.Order, s.EntityID)
	}
	return r
}

// count tallies a terminal state. Callers hold the downloader mutex.
func (r *Report) count(t *Task) {
	switch t.State {
	case StateCompleted:
		r.Completed++
		if t.Skipped {
			r.Skipped++
		}
	case StateFailed:
		r.Failed++
	case StateCancelled:
		r.Cancelled++
	}
}

// AllCompleted reports whether every task finished successfully.
func (r *Report) AllCompleted() bool {
	return r.Completed == len(r.Order)
}
