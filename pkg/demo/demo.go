// Package demo turns one narrated demonstration segment into a skill: it
// checks the demonstrated tab, collects observed elements with progressively
// broader queries, attaches the tab's DOM timeline and hands everything to
// the skill author.
package demo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/antoinenguyen27/siren/pkg/author"
	"github.com/antoinenguyen27/siren/pkg/domcapture"
	"github.com/antoinenguyen27/siren/pkg/logger"
	"github.com/antoinenguyen27/siren/pkg/sites"
	"github.com/antoinenguyen27/siren/pkg/types/page"
)

// AttemptPause separates consecutive observation attempts.
const AttemptPause = 1200 * time.Millisecond

var (
	// ErrAuthPage means the demonstrated tab sits on a sign-in page.
	ErrAuthPage = errors.New("the demo browser is on a Google sign-in page; sign in there first, then capture the demo again")
	// ErrMissingCDP means no browser endpoint was supplied.
	ErrMissingCDP = errors.New("demoCdpUrl is required for demo mode")
)

// Page is the demonstrated tab.
type Page interface {
	page.Page
	URL() string
	Title() (string, error)
}

// AttachFunc connects to the browser at cdpURL and selects the tab showing
// tabURL. An empty tabURL keeps whichever tab the browser offers.
type AttachFunc func(ctx context.Context, cdpURL, tabURL string) (Page, error)

// SkillWriter writes a skill from a segment.
type SkillWriter interface {
	WriteFromSegment(ctx context.Context, seg author.Segment) (author.Result, error)
}

type attempt struct {
	label string
	query string
	opts  page.ObserveOptions
}

func attempts(transcript string) []attempt {
	return []attempt{
		{"relevance+iframes", fmt.Sprintf("Find all interactive elements relevant to: %q", transcript), page.ObserveOptions{IncludeIframes: true}},
		{"generic+iframes", "List interactive elements visible on the page. Include menus, toolbar buttons, and controls.", page.ObserveOptions{IncludeIframes: true}},
		{"generic+topframe", "List interactive elements visible on the page.", page.ObserveOptions{IncludeIframes: false}},
	}
}

// Pipeline processes demo segments.
type Pipeline struct {
	attach   AttachFunc
	writer   SkillWriter
	captures *domcapture.Manager
	pause    time.Duration
}

// New builds a pipeline. captures may be nil when DOM capture is not used.
func New(attach AttachFunc, writer SkillWriter, captures *domcapture.Manager) *Pipeline {
	return &Pipeline{attach: attach, writer: writer, captures: captures, pause: AttemptPause}
}

// SegmentRequest is one narrated segment.
type SegmentRequest struct {
	Transcript string
	TabURL     string
	CDPURL     string
	// TabID selects the DOM capture session whose timeline is attached.
	TabID string
}

// Outcome reports what a segment produced.
type Outcome struct {
	Skipped        bool
	Skill          author.Result
	Observed       int
	TimelineEvents int
}

// Segment writes a skill for req. Blank transcripts are skipped before any
// browser or model work.
func (p *Pipeline) Segment(ctx context.Context, req SegmentRequest) (Outcome, error) {
	transcript := strings.TrimSpace(req.Transcript)
	if transcript == "" {
		logger.Debugf(ctx, "[demo] empty transcript, skipping")
		return Outcome{Skipped: true}, nil
	}
	if strings.TrimSpace(req.CDPURL) == "" {
		return Outcome{}, ErrMissingCDP
	}

	tabURL := req.TabURL
	if !sites.IsValidURL(tabURL) {
		tabURL = ""
	}
	pg, err := p.attach(ctx, strings.TrimSpace(req.CDPURL), tabURL)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "failed to attach to the demo tab")
	}

	current := pg.URL()
	title, _ := pg.Title()
	logger.Debugf(ctx, "[demo] page diagnostics: url=%q title=%q", current, title)
	if sites.IsAuthURL(current) {
		logger.Debugf(ctx, "[demo] blocked: browser is on a sign-in page")
		return Outcome{}, ErrAuthPage
	}

	observed := p.observe(ctx, pg, transcript)

	target := req.TabURL
	if !sites.IsValidURL(target) {
		target = current
	}
	timeline, events := p.timeline(ctx, req.TabID)
	seg := author.Segment{
		Transcript: transcript,
		Observed:   observed,
		PageURL:    target,
		Timeline:   timeline,
	}

	logger.Debugf(ctx, "[demo] writing skill from transcript + %d observed elements", len(observed))
	res, err := p.writer.WriteFromSegment(ctx, seg)
	if err != nil {
		return Outcome{}, err
	}
	logger.Debugf(ctx, "[demo] skill written: %s", res.SkillName)

	return Outcome{Skill: res, Observed: len(observed), TimelineEvents: events}, nil
}

// observe runs the attempts in order until one yields elements.
func (p *Pipeline) observe(ctx context.Context, pg page.Page, transcript string) []page.ObservedElement {
	all := attempts(transcript)
	for i, a := range all {
		logger.Debugf(ctx, "[demo] observe attempt %s start", a.label)
		elements, err := pg.Observe(ctx, a.query, a.opts)
		switch {
		case err != nil:
			logger.Debugf(ctx, "[demo] observe attempt %s failed: %v", a.label, err)
		case len(elements) > 0:
			logger.Debugf(ctx, "[demo] observe attempt %s returned %d elements", a.label, len(elements))
			logger.Debugf(ctx, "[demo] observe sample: %s", preview(elements, 5))
			return elements
		default:
			logger.Debugf(ctx, "[demo] observe attempt %s returned 0 elements", a.label)
		}

		if i < len(all)-1 {
			select {
			case <-time.After(p.pause):
			case <-ctx.Done():
				return nil
			}
		}
	}
	return nil
}

// timeline stops the tab's capture session, if any, and renders it.
func (p *Pipeline) timeline(ctx context.Context, tabID string) (string, int) {
	if p.captures == nil || tabID == "" {
		return "", 0
	}
	tl, err := p.captures.Stop(ctx, tabID)
	if err != nil {
		if !errors.Is(err, domcapture.ErrSessionNotFound) {
			logger.G(ctx).WithError(err).WithField("tab_id", tabID).Warn("failed to stop capture session")
		}
		return "", 0
	}
	logger.Debugf(ctx, "[demo] dom timeline: %d events, %d dropped", len(tl.Events), tl.TotalDropped())
	if len(tl.Events) == 0 {
		return "", 0
	}
	return tl.Render(domcapture.DefaultRenderLimit), len(tl.Events)
}

func preview(elements []page.ObservedElement, n int) string {
	if len(elements) < n {
		n = len(elements)
	}
	parts := make([]string, 0, n)
	for i, e := range elements[:n] {
		desc := e.Description
		if desc == "" {
			desc = "Unknown element"
		}
		parts = append(parts, fmt.Sprintf("[%d] %s", i+1, desc))
	}
	return strings.Join(parts, " | ")
}
