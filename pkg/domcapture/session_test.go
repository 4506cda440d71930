package domcapture

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.UnixMilli(1_700_000_000_000)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s := newSession("tab-1", start, func() time.Time { return start })
	t.Cleanup(func() { s.Stop() })
	return s
}

func click(frame string, offset int64) RawEvent {
	button := 0
	return RawEvent{
		Kind:        KindClick,
		TimestampMs: start.UnixMilli() + offset,
		FrameURL:    frame,
		Target:      RawNode{Tag: "BUTTON", ID: "go", Text: "  Go \n now "},
		Button:      &button,
	}
}

func TestSession_CapPerFrame(t *testing.T) {
	s := newTestSession(t)
	for i := 0; i < 310; i++ {
		_, err := s.Record(click("https://example.com/", int64(i)))
		require.NoError(t, err)
	}

	tl := s.Stop()
	assert.Len(t, tl.Events, 300)
	assert.Equal(t, map[string]int{"https://example.com/": 10}, tl.Dropped)
	assert.Equal(t, int64(299), tl.Events[299].OffsetMs)
}

func TestSession_CapIsIndependentPerFrame(t *testing.T) {
	s := newTestSession(t)
	for i := 0; i < 305; i++ {
		_, err := s.Record(click("https://a.example/", int64(i)))
		require.NoError(t, err)
	}
	_, err := s.Record(click("https://b.example/", 5))
	require.NoError(t, err)

	tl := s.Stop()
	assert.Len(t, tl.Events, 301)
	assert.Equal(t, map[string]int{"https://a.example/": 5}, tl.Dropped)
}

func TestSession_MergesFramesByOffset(t *testing.T) {
	s := newTestSession(t)
	for _, ev := range []RawEvent{
		click("https://top/", 300),
		click("https://iframe/", 100),
		click("https://top/", 200),
		click("https://iframe/", 400),
	} {
		_, err := s.Record(ev)
		require.NoError(t, err)
	}

	tl := s.Stop()
	var offsets []int64
	for _, ev := range tl.Events {
		offsets = append(offsets, ev.OffsetMs)
	}
	assert.Equal(t, []int64{100, 200, 300, 400}, offsets)
	assert.Empty(t, tl.Dropped)
}

func TestSession_MutationCounterResetsOnEvent(t *testing.T) {
	s := newTestSession(t)
	frame := "https://example.com/"

	s.NotifyMutations(frame, 3)
	s.NotifyMutations(frame, 2)
	s.NotifyMutations("https://other/", 7)
	_, err := s.Record(click(frame, 10))
	require.NoError(t, err)
	_, err = s.Record(click(frame, 20))
	require.NoError(t, err)
	s.NotifyMutations(frame, 1)
	_, err = s.Record(click(frame, 30))
	require.NoError(t, err)

	tl := s.Stop()
	require.Len(t, tl.Events, 3)
	assert.Equal(t, 5, tl.Events[0].MutationCount)
	assert.Equal(t, 0, tl.Events[1].MutationCount)
	assert.Equal(t, 1, tl.Events[2].MutationCount)
}

func TestSession_PasswordHandling(t *testing.T) {
	s := newTestSession(t)
	pw := RawNode{Tag: "input", Type: "Password", Name: "pw"}

	ok, err := s.Record(RawEvent{Kind: KindInput, Target: pw, Value: "hunter2"})
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.Record(RawEvent{Kind: KindChange, Target: pw, Value: "hunter2"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Record(RawEvent{Kind: KindClick, Target: pw, Value: "hunter2"})
	require.NoError(t, err)
	assert.True(t, ok)

	tl := s.Stop()
	require.Len(t, tl.Events, 1)
	assert.Empty(t, tl.Events[0].ValuePreview)
	assert.NotContains(t, tl.Render(0), "hunter2")
}

func TestSession_Normalisation(t *testing.T) {
	s := newTestSession(t)
	long := strings.Repeat("word ", 100)
	ancestry := make([]RawNode, 6)
	for i := range ancestry {
		ancestry[i] = RawNode{Tag: fmt.Sprintf("div%d", i)}
	}

	_, err := s.Record(RawEvent{
		Kind:        KindInput,
		TimestampMs: start.UnixMilli() - 50,
		Target: RawNode{
			Tag:     "INPUT",
			DataQA:  "search-box",
			Classes: []string{"a", "", "b", "c", "d", "e"},
			Text:    long,
		},
		Ancestry: ancestry,
		CSSPath:  strings.Repeat("x", 500),
		Value:    long,
	})
	require.NoError(t, err)

	ev := s.Stop().Events[0]
	assert.Equal(t, int64(0), ev.OffsetMs, "offsets never go negative")
	assert.Equal(t, "input", ev.Target.Tag)
	assert.Equal(t, "search-box", ev.Target.TestID)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ev.Target.Classes)
	assert.Len(t, ev.Target.Text, 180)
	assert.Len(t, ev.Ancestry, 4)
	assert.Len(t, ev.CSSPath, 400)
	assert.Len(t, ev.ValuePreview, 80)
	assert.Equal(t, "about:blank", ev.FrameURL)
	assert.Nil(t, ev.Button)
}

func TestSession_ButtonOnlyForClicks(t *testing.T) {
	s := newTestSession(t)
	b := 2
	_, err := s.Record(RawEvent{Kind: KindSubmit, Target: RawNode{Tag: "form"}, Button: &b})
	require.NoError(t, err)
	_, err = s.Record(click("", 1))
	require.NoError(t, err)

	tl := s.Stop()
	require.Len(t, tl.Events, 2)
	assert.Nil(t, tl.Events[0].Button)
	require.NotNil(t, tl.Events[1].Button)
	assert.Equal(t, 0, *tl.Events[1].Button)
}

func TestSession_RejectsAfterStop(t *testing.T) {
	s := newTestSession(t)
	s.Stop()

	_, err := s.Record(click("", 1))
	assert.True(t, errors.Is(err, ErrSessionStopped))
	s.NotifyMutations("x", 3)

	assert.Empty(t, s.Stop().Events)
}

func TestSession_InvalidKind(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Record(RawEvent{Kind: "keydown"})
	assert.Error(t, err)
}

func TestSession_ConcurrentRecording(t *testing.T) {
	s := newTestSession(t)
	var wg sync.WaitGroup
	for f := 0; f < 4; f++ {
		wg.Add(1)
		go func(f int) {
			defer wg.Done()
			frame := fmt.Sprintf("https://frame-%d/", f)
			for i := 0; i < 50; i++ {
				s.NotifyMutations(frame, 1)
				_, _ = s.Record(click(frame, int64(i)))
			}
		}(f)
	}
	wg.Wait()
	assert.Equal(t, 200, s.Len())
}

func TestManager_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewManager()

	s, err := m.Start(ctx, "tab-1", start)
	require.NoError(t, err)
	_, err = m.Start(ctx, "tab-1", start)
	assert.True(t, errors.Is(err, ErrSessionExists))
	_, err = m.Start(ctx, "", start)
	assert.Error(t, err)

	_, err = m.Start(ctx, "tab-2", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"tab-1", "tab-2"}, m.Active())

	got, ok := m.Get("tab-1")
	require.True(t, ok)
	assert.Same(t, s, got)

	_, err = s.Record(click("https://example.com/", 5))
	require.NoError(t, err)
	tl, err := m.Stop(ctx, "tab-1")
	require.NoError(t, err)
	assert.Len(t, tl.Events, 1)

	_, err = m.Stop(ctx, "tab-1")
	assert.True(t, errors.Is(err, ErrSessionNotFound))

	assert.True(t, m.TabClosed(ctx, "tab-2"))
	assert.False(t, m.TabClosed(ctx, "tab-2"))
	assert.Empty(t, m.Active())
}

func TestManager_StopAll(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	for _, id := range []string{"a", "b"} {
		_, err := m.Start(ctx, id, start)
		require.NoError(t, err)
	}
	m.StopAll()
	assert.Empty(t, m.Active())
}
