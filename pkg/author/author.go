// Package author turns a narrated demonstration segment into a persisted
// skill document: inputs are scrubbed, one synthesis call drafts the document,
// then element text, confidence and notes are enforced before saving.
package author

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/antoinenguyen27/siren/pkg/logger"
	"github.com/antoinenguyen27/siren/pkg/skills"
	"github.com/antoinenguyen27/siren/pkg/telemetry"
	"github.com/antoinenguyen27/siren/pkg/types/page"
)

const (
	minTranscriptWords = 3

	noteLowConfidence      = "Narration/context was partial. Re-observe the page and retry with a clearer one-step instruction."
	rationaleLowConfidence = "Confidence reduced because narration was ambiguous or observed elements were limited."
	rationaleRedaction     = "Confidence reduced because user-specific data was scrubbed to enforce privacy constraints."
)

// ErrEmptySynthesis is returned when the synthesizer produces no document.
var ErrEmptySynthesis = errors.New("skill synthesis returned empty output")

// Synthesizer drafts a skill document from a system contract and a user prompt.
type Synthesizer interface {
	Synthesize(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// SynthesizerFunc adapts a function to Synthesizer.
type SynthesizerFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

// Synthesize calls f.
func (f SynthesizerFunc) Synthesize(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f(ctx, systemPrompt, userPrompt)
}

// Saver persists skill documents.
type Saver interface {
	Save(ctx context.Context, name, content, domain string) (skills.SaveResult, error)
}

// Segment is one narrated demonstration step.
type Segment struct {
	Transcript string
	Observed   []page.ObservedElement
	PageURL    string
	// Timeline is a rendered DOM event timeline; empty when none was captured.
	Timeline string
}

// Result describes the persisted skill.
type Result struct {
	SkillName   string `json:"skillName"`
	Filename    string `json:"filename"`
	Domain      string `json:"domain"`
	Confidence  string `json:"confidence"`
	Corrections int    `json:"corrections"`
	Redactions  int    `json:"redactions"`
	Content     string `json:"-"`
}

// Author writes skills.
type Author struct {
	synth Synthesizer
	store Saver
	now   func() time.Time
}

// New creates an Author.
func New(synth Synthesizer, store Saver) *Author {
	return &Author{synth: synth, store: store, now: time.Now}
}

// WriteFromSegment synthesizes, validates and saves a skill for seg.
func (a *Author) WriteFromSegment(ctx context.Context, seg Segment) (Result, error) {
	domain, err := domainOf(seg.PageURL)
	if err != nil {
		return Result{}, err
	}

	ctx, span := telemetry.StartSpan(ctx, "author.write_from_segment",
		attribute.String("author.domain", domain),
		attribute.Int("author.observed", len(seg.Observed)),
	)
	defer span.End()
	log := logger.G(ctx).WithField("domain", domain)

	transcript, transcriptRedactions := Redact(seg.Transcript)
	observed, observedRedactions := Redact(FormatObserved(seg.Observed))
	timeline, timelineRedactions := Redact(seg.Timeline)
	redactions := transcriptRedactions + observedRedactions + timelineRedactions

	logger.Debugf(ctx, "[skill-writer] synthesizing for %s with %d observed element(s), %d redaction(s)",
		domain, len(seg.Observed), redactions)

	raw, err := a.synth.Synthesize(ctx, systemPrompt, userPrompt(transcript, domain, observed, timeline))
	if err != nil {
		span.RecordError(err)
		return Result{}, errors.Wrap(err, "skill synthesis failed")
	}
	md := cleanOutput(raw)
	if md == "" {
		span.RecordError(ErrEmptySynthesis)
		return Result{}, ErrEmptySynthesis
	}

	md, corrections := enforceVerbatim(md, page.Descriptions(seg.Observed))

	if len(seg.Observed) == 0 || len(strings.Fields(seg.Transcript)) < minTranscriptWords {
		md = setConfidence(md, skills.ConfidenceLow)
		md = appendNote(md, skills.SectionSelfHealingNotes, noteLowConfidence)
		md = appendNote(md, skills.SectionConfidenceRationale, rationaleLowConfidence)
	}

	if redactions > 0 {
		md = lowerConfidence(md, skills.ConfidenceMedium)
		md = appendNote(md, skills.SectionConfidenceRationale, rationaleRedaction)
	}

	if corrections > 0 {
		md = appendNote(md, skills.SectionConfidenceRationale,
			fmt.Sprintf("Adjusted %d action element description(s) to exact observe() text.", corrections))
	}

	name := skillName(md)
	if name == "" {
		name = fmt.Sprintf("skill-%d", a.now().UnixMilli())
	}

	saved, err := a.store.Save(ctx, name, md, domain)
	if err != nil {
		span.RecordError(err)
		return Result{}, errors.Wrap(err, "failed to save skill")
	}

	res := Result{
		SkillName:   name,
		Filename:    saved.Filename,
		Domain:      domain,
		Confidence:  currentConfidence(md),
		Corrections: corrections,
		Redactions:  redactions,
		Content:     md,
	}
	span.SetAttributes(
		attribute.String("author.skill", name),
		attribute.Int("author.corrections", corrections),
		attribute.Int("author.redactions", redactions),
	)
	log.WithField("skill", name).WithField("confidence", res.Confidence).Info("skill written")
	logger.Debugf(ctx, "[skill-writer] saved %s (confidence=%s corrections=%d)", saved.Filename, res.Confidence, corrections)
	return res, nil
}

func domainOf(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", errors.Wrapf(err, "invalid page url %q", raw)
	}
	if u.Hostname() == "" {
		return "", errors.Errorf("invalid page url %q: missing host", raw)
	}
	return u.Hostname(), nil
}

// FormatObserved renders observed elements one per line for prompts.
func FormatObserved(elements []page.ObservedElement) string {
	if len(elements) == 0 {
		return "No observed elements were returned."
	}
	lines := make([]string, 0, len(elements))
	for i, e := range elements {
		desc := e.Description
		if desc == "" {
			desc = "Unknown element"
		}
		method := e.Method
		if method == "" {
			method = "unknown"
		}
		args := e.Arguments
		if args == nil {
			args = []string{}
		}
		encoded, _ := json.Marshal(args)
		lines = append(lines, fmt.Sprintf("[%d] Description: %q | Method: %s | Args: %s", i+1, desc, method, encoded))
	}
	return strings.Join(lines, "\n")
}

func userPrompt(transcript, domain, observed, timeline string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Voice narration: %q\n\nSite: %s\n\nObserved interactive elements on page:\n%s", transcript, domain, observed)
	if strings.TrimSpace(timeline) != "" {
		fmt.Fprintf(&b, "\n\nDOM event timeline:\n%s", timeline)
	}
	return b.String()
}
