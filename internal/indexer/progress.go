package indexer

import "fmt"

// Observer receives progress in [0,100] and a status text.
type Observer interface {
	Report(progress float64, text string)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(progress float64, text string)

// Report calls f.
func (f ObserverFunc) Report(progress float64, text string) { f(progress, text) }

type nopObserver struct{}

func (nopObserver) Report(float64, string) {}

// event is a state transition of one file, sent by workers to the tracker.
type event struct {
	file  int
	state State
}

// tracker owns progress state. Workers only send events; the tracker
// goroutine is the single writer of the counters and the only caller of
// the observer.
type tracker struct {
	events chan event
	done   chan struct{}

	obs    Observer
	names  []string
	credit []int
	sum    int
	last   float64
}

func newTracker(names []string, obs Observer) *tracker {
	if obs == nil {
		obs = nopObserver{}
	}
	t := &tracker{
		events: make(chan event, len(names)+1),
		done:   make(chan struct{}),
		obs:    obs,
		names:  names,
		credit: make([]int, len(names)),
	}
	go t.run()
	return t
}

func (t *tracker) send(file int, s State) { t.events <- event{file, s} }

// close stops the tracker after all pending events were reported.
func (t *tracker) close() {
	close(t.events)
	<-t.done
}

func (t *tracker) run() {
	defer close(t.done)
	total := len(t.names)
	for ev := range t.events {
		if c := ev.state.credit(); c > t.credit[ev.file] {
			t.sum += c - t.credit[ev.file]
			t.credit[ev.file] = c
		}
		p := t.percent()
		text := fmt.Sprintf("%s %s (%d/%d)", ev.state, t.names[ev.file], ev.file+1, total)
		t.obs.Report(p, text)
	}
}

// percent is non-decreasing and reaches 100 only when every file has
// reached a terminal state.
func (t *tracker) percent() float64 {
	total := len(t.names) * stagesPerFile
	if total == 0 || t.sum >= total {
		t.last = 100
		return 100
	}
	p := float64(t.sum) * 100 / float64(total)
	if p >= 100 {
		p = 100 - 1e-9
	}
	if p < t.last {
		p = t.last
	}
	t.last = p
	return p
}
