package domcapture

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MaxEventsPerFrame caps each frame's buffer; further events are dropped and counted.
const MaxEventsPerFrame = 300

// ErrSessionStopped is returned when recording into a stopped session.
var ErrSessionStopped = errors.New("capture session stopped")

type mutationNotice struct {
	frameURL string
	count    int
}

type frameBuffer struct {
	events    []Event
	dropped   int
	mutations int
}

// Session buffers the events of one tab.
type Session struct {
	id        string
	tabID     string
	startedAt time.Time
	now       func() time.Time

	mu      sync.Mutex
	frames  map[string]*frameBuffer
	stopped bool

	notices chan mutationNotice
	done    chan struct{}
	drained chan struct{}
}

func newSession(tabID string, startedAt time.Time, now func() time.Time) *Session {
	s := &Session{
		id:        uuid.NewString(),
		tabID:     tabID,
		startedAt: startedAt,
		now:       now,
		frames:    make(map[string]*frameBuffer),
		notices:   make(chan mutationNotice, 256),
		done:      make(chan struct{}),
		drained:   make(chan struct{}),
	}
	go s.drain()
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// TabID returns the tab the session captures.
func (s *Session) TabID() string { return s.tabID }

// StartedAt returns the session start time.
func (s *Session) StartedAt() time.Time { return s.startedAt }

func (s *Session) drain() {
	defer close(s.drained)
	for {
		select {
		case n := <-s.notices:
			s.mu.Lock()
			s.applyLocked(n)
			s.mu.Unlock()
		case <-s.done:
			return
		}
	}
}

func (s *Session) applyLocked(n mutationNotice) {
	if s.stopped || n.count <= 0 {
		return
	}
	s.frameLocked(n.frameURL).mutations += n.count
}

// pendingLocked applies notices queued but not yet drained so a following
// event sees every mutation reported before it.
func (s *Session) pendingLocked() {
	for {
		select {
		case n := <-s.notices:
			s.applyLocked(n)
		default:
			return
		}
	}
}

func (s *Session) frameLocked(frameURL string) *frameBuffer {
	if frameURL == "" {
		frameURL = unknownFrame
	}
	fb, ok := s.frames[frameURL]
	if !ok {
		fb = &frameBuffer{}
		s.frames[frameURL] = fb
	}
	return fb
}

// NotifyMutations reports count DOM changes in a frame. It is asynchronous;
// notifications after Stop are discarded.
func (s *Session) NotifyMutations(frameURL string, count int) {
	if count <= 0 {
		return
	}
	select {
	case s.notices <- mutationNotice{frameURL: frameURL, count: count}:
	case <-s.done:
	}
}

// Record captures one event. It reports whether the event was buffered:
// input and change events on password fields are ignored, and events beyond
// the frame cap are counted as dropped.
func (s *Session) Record(raw RawEvent) (bool, error) {
	if !raw.Kind.Valid() {
		return false, errors.Errorf("unsupported event kind %q", raw.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false, ErrSessionStopped
	}

	password := raw.Target.isPassword()
	if password && (raw.Kind == KindInput || raw.Kind == KindChange) {
		return false, nil
	}

	s.pendingLocked()
	fb := s.frameLocked(raw.FrameURL)
	mutations := fb.mutations
	fb.mutations = 0

	if len(fb.events) >= MaxEventsPerFrame {
		fb.dropped++
		return false, nil
	}

	fb.events = append(fb.events, s.build(raw, mutations, password))
	return true, nil
}

func (s *Session) build(raw RawEvent, mutations int, password bool) Event {
	ts := raw.TimestampMs
	if ts == 0 {
		ts = s.now().UnixMilli()
	}
	offset := ts - s.startedAt.UnixMilli()
	if offset < 0 {
		offset = 0
	}

	frameURL := raw.FrameURL
	if frameURL == "" {
		frameURL = unknownFrame
	}

	ev := Event{
		Kind:          raw.Kind,
		OffsetMs:      offset,
		FrameURL:      frameURL,
		Target:        summarize(raw.Target),
		CSSPath:       truncate(strings.TrimSpace(raw.CSSPath), maxCSSPathLen),
		MutationCount: mutations,
	}
	for i, n := range raw.Ancestry {
		if i == maxAncestry {
			break
		}
		ev.Ancestry = append(ev.Ancestry, summarize(n))
	}
	if !password && (raw.Kind == KindInput || raw.Kind == KindChange) {
		ev.ValuePreview = truncate(normalizeText(raw.Value), maxValueLen)
	}
	if raw.Kind == KindClick && raw.Button != nil {
		b := *raw.Button
		ev.Button = &b
	}
	return ev
}

// Len returns the number of buffered events across frames.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, fb := range s.frames {
		n += len(fb.events)
	}
	return n
}

// Stop ends capture and returns the timeline. Stopping twice returns an
// empty timeline.
func (s *Session) Stop() Timeline {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return Timeline{Dropped: map[string]int{}}
	}
	s.stopped = true
	close(s.done)
	frames := s.frames
	s.frames = map[string]*frameBuffer{}
	s.mu.Unlock()
	<-s.drained

	tl := Timeline{Dropped: map[string]int{}}
	for url, fb := range frames {
		tl.Events = append(tl.Events, fb.events...)
		if fb.dropped > 0 {
			tl.Dropped[url] = fb.dropped
		}
	}
	sort.SliceStable(tl.Events, func(i, j int) bool {
		if tl.Events[i].OffsetMs != tl.Events[j].OffsetMs {
			return tl.Events[i].OffsetMs < tl.Events[j].OffsetMs
		}
		return tl.Events[i].FrameURL < tl.Events[j].FrameURL
	})
	return tl
}
