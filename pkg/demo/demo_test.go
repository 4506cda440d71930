package demo

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoinenguyen27/siren/pkg/author"
	"github.com/antoinenguyen27/siren/pkg/domcapture"
	"github.com/antoinenguyen27/siren/pkg/logger"
	"github.com/antoinenguyen27/siren/pkg/types/page"
	"github.com/antoinenguyen27/siren/pkg/types/page/pagetest"
)

type tab struct {
	*pagetest.Fake
	url   string
	title string
}

func (t *tab) URL() string            { return t.url }
func (t *tab) Title() (string, error) { return t.title, nil }

type recordingWriter struct {
	segments []author.Segment
	err      error
}

func (w *recordingWriter) WriteFromSegment(_ context.Context, seg author.Segment) (author.Result, error) {
	w.segments = append(w.segments, seg)
	if w.err != nil {
		return author.Result{}, w.err
	}
	return author.Result{SkillName: "Open settings", Filename: "example.com-open-settings.md", Domain: "example.com"}, nil
}

func attachTo(t *tab, calls *int) AttachFunc {
	return func(_ context.Context, cdpURL, tabURL string) (Page, error) {
		*calls++
		return t, nil
	}
}

func newPipeline(attach AttachFunc, w SkillWriter, captures *domcapture.Manager) *Pipeline {
	p := New(attach, w, captures)
	p.pause = time.Millisecond
	return p
}

func TestSegmentSkipsEmptyTranscript(t *testing.T) {
	calls := 0
	w := &recordingWriter{}
	p := newPipeline(attachTo(&tab{Fake: &pagetest.Fake{}}, &calls), w, nil)

	out, err := p.Segment(context.Background(), SegmentRequest{Transcript: "  ", CDPURL: "http://localhost:9222"})
	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.Zero(t, calls)
	assert.Empty(t, w.segments)
}

func TestSegmentRequiresCDP(t *testing.T) {
	calls := 0
	p := newPipeline(attachTo(&tab{Fake: &pagetest.Fake{}}, &calls), &recordingWriter{}, nil)

	_, err := p.Segment(context.Background(), SegmentRequest{Transcript: "click settings"})
	assert.ErrorIs(t, err, ErrMissingCDP)
	assert.Zero(t, calls)
}

func TestSegmentRejectsSignInPage(t *testing.T) {
	calls := 0
	w := &recordingWriter{}
	pg := &tab{Fake: &pagetest.Fake{}, url: "https://accounts.google.com/signin/v2"}
	p := newPipeline(attachTo(pg, &calls), w, nil)

	_, err := p.Segment(context.Background(), SegmentRequest{Transcript: "click settings", CDPURL: "http://localhost:9222"})
	assert.ErrorIs(t, err, ErrAuthPage)
	assert.Empty(t, w.segments)
	assert.Zero(t, pg.CountCalls("Observe"))
}

func TestSegmentAttachFailure(t *testing.T) {
	attach := func(context.Context, string, string) (Page, error) {
		return nil, errors.New("connection refused")
	}
	p := newPipeline(attach, &recordingWriter{}, nil)

	_, err := p.Segment(context.Background(), SegmentRequest{Transcript: "x", CDPURL: "http://localhost:9222"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSegmentFallsBackThroughAttempts(t *testing.T) {
	var queries []string
	var iframes []bool
	pg := &tab{url: "https://example.com/app", Fake: &pagetest.Fake{
		ObserveFunc: func(_ context.Context, query string, opts page.ObserveOptions) ([]page.ObservedElement, error) {
			queries = append(queries, query)
			iframes = append(iframes, opts.IncludeIframes)
			switch len(queries) {
			case 1:
				return nil, errors.New("frame detached")
			case 2:
				return nil, nil
			}
			return []page.ObservedElement{{Selector: "#settings", Description: `button "Settings"`, Method: "click"}}, nil
		},
	}}
	calls := 0
	w := &recordingWriter{}
	p := newPipeline(attachTo(pg, &calls), w, nil)

	ctx, c := logger.WithCollector(context.Background())
	out, err := p.Segment(ctx, SegmentRequest{
		Transcript: "open the settings menu",
		CDPURL:     "http://localhost:9222",
		TabURL:     "https://example.com/app#home",
	})
	require.NoError(t, err)

	require.Len(t, queries, 3)
	assert.Contains(t, queries[0], `"open the settings menu"`)
	assert.Equal(t, []bool{true, true, false}, iframes)
	assert.Equal(t, 1, out.Observed)
	assert.Equal(t, "Open settings", out.Skill.SkillName)

	require.Len(t, w.segments, 1)
	seg := w.segments[0]
	assert.Equal(t, "open the settings menu", seg.Transcript)
	assert.Equal(t, "https://example.com/app#home", seg.PageURL)
	assert.Empty(t, seg.Timeline)
	assert.Len(t, seg.Observed, 1)

	lines := c.Lines()
	assert.Contains(t, lines, `[demo] observe attempt relevance+iframes failed: frame detached`)
	assert.Contains(t, lines, `[demo] observe sample: [1] button "Settings"`)
}

func TestSegmentUsesPageURLWhenTabURLInvalid(t *testing.T) {
	var gotTab string
	pg := &tab{url: "https://example.com/current", Fake: &pagetest.Fake{}}
	attach := func(_ context.Context, _ string, tabURL string) (Page, error) {
		gotTab = tabURL
		return pg, nil
	}
	w := &recordingWriter{}
	p := newPipeline(attach, w, nil)

	out, err := p.Segment(context.Background(), SegmentRequest{Transcript: "do it", CDPURL: "http://localhost:9222", TabURL: "chrome://newtab"})
	require.NoError(t, err)
	assert.Empty(t, gotTab)
	assert.Zero(t, out.Observed)
	require.Len(t, w.segments, 1)
	assert.Equal(t, "https://example.com/current", w.segments[0].PageURL)
	assert.Empty(t, w.segments[0].Observed)
}

func TestSegmentAttachesTimeline(t *testing.T) {
	captures := domcapture.NewManager()
	sess, err := captures.Start(context.Background(), "tab-1", time.Now())
	require.NoError(t, err)
	_, err = sess.Record(domcapture.RawEvent{
		Kind:     domcapture.KindClick,
		FrameURL: "https://example.com/app",
		Target:   domcapture.RawNode{Tag: "button", Text: "Settings"},
	})
	require.NoError(t, err)

	calls := 0
	w := &recordingWriter{}
	pg := &tab{url: "https://example.com/app", Fake: &pagetest.Fake{}}
	p := newPipeline(attachTo(pg, &calls), w, captures)

	out, err := p.Segment(context.Background(), SegmentRequest{
		Transcript: "open settings",
		CDPURL:     "http://localhost:9222",
		TabID:      "tab-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.TimelineEvents)
	require.Len(t, w.segments, 1)
	assert.Contains(t, w.segments[0].Timeline, "click")

	_, ok := captures.Get("tab-1")
	assert.False(t, ok)
}

func TestSegmentWithoutCaptureSession(t *testing.T) {
	calls := 0
	w := &recordingWriter{}
	pg := &tab{url: "https://example.com/", Fake: &pagetest.Fake{}}
	p := newPipeline(attachTo(pg, &calls), w, domcapture.NewManager())

	out, err := p.Segment(context.Background(), SegmentRequest{Transcript: "x", CDPURL: "http://localhost:9222", TabID: "missing"})
	require.NoError(t, err)
	assert.Zero(t, out.TimelineEvents)
	assert.Empty(t, w.segments[0].Timeline)
}

func TestSegmentWriterError(t *testing.T) {
	calls := 0
	w := &recordingWriter{err: errors.New("model unavailable")}
	pg := &tab{url: "https://example.com/", Fake: &pagetest.Fake{}}
	p := newPipeline(attachTo(pg, &calls), w, nil)

	_, err := p.Segment(context.Background(), SegmentRequest{Transcript: "x", CDPURL: "http://localhost:9222"})
	assert.EqualError(t, err, "model unavailable")
}

func TestObserveStopsOnCancel(t *testing.T) {
	pg := &pagetest.Fake{}
	p := New(nil, nil, nil)
	p.pause = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, p.observe(ctx, pg, "x"))
	assert.Equal(t, 1, pg.CountCalls("Observe"))
}

func TestPreview(t *testing.T) {
	elements := []page.ObservedElement{{Description: "a"}, {}, {Description: "c"}}
	assert.Equal(t, "[1] a | [2] Unknown element", preview(elements, 2))
	assert.Equal(t, "[1] a | [2] Unknown element | [3] c", preview(elements, 5))
}
