package browser

import (
	"context"

	"github.com/pkg/errors"
	"github.com/playwright-community/playwright-go"

	"github.com/antoinenguyen27/siren/pkg/logger"
	"github.com/antoinenguyen27/siren/pkg/types/page"
)

// Page drives one playwright page. It implements page.Page, page.Extractor
// and page.Navigator.
type Page struct {
	pw        playwright.Page
	resolver  Resolver
	timeoutMs float64
}

var (
	_ page.Page      = (*Page)(nil)
	_ page.Extractor = (*Page)(nil)
	_ page.Navigator = (*Page)(nil)
)

func newPage(pw playwright.Page, resolver Resolver, timeoutMs float64) *Page {
	pw.SetDefaultTimeout(timeoutMs)
	return &Page{pw: pw, resolver: resolver, timeoutMs: timeoutMs}
}

// Navigate loads url and waits for DOMContentLoaded.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.pw.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(p.timeoutMs * 3),
	})
	if err != nil {
		return errors.Wrapf(err, "failed to navigate to %s", url)
	}
	logger.G(ctx).WithField("url", url).Debug("navigated")
	return nil
}

func (p *Page) URL() string { return p.pw.URL() }

func (p *Page) Title() (string, error) {
	return p.pw.Title()
}

// Observe snapshots interactive elements of the main frame, and of child
// frames when asked, then ranks them for query.
func (p *Page) Observe(ctx context.Context, query string, opts page.ObserveOptions) ([]page.ObservedElement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	main := p.pw.MainFrame()
	var candidates []page.ObservedElement
	for i, frame := range p.pw.Frames() {
		isMain := frame == main
		if !isMain && !opts.IncludeIframes {
			continue
		}
		raw, err := frame.Evaluate(snapshotScript, maxSnapshotNodes)
		if err != nil {
			if isMain {
				return nil, errors.Wrap(err, "failed to snapshot page")
			}
			logger.G(ctx).WithError(err).WithField("frame", frame.URL()).Debug("skipping frame snapshot")
			continue
		}
		nodes, err := decodeSnapshot(raw)
		if err != nil {
			return nil, err
		}
		idx := i
		if isMain {
			idx = 0
		}
		for _, n := range nodes {
			candidates = append(candidates, n.element(idx))
		}
	}

	if p.resolver == nil {
		return RankByKeywords(query, candidates), nil
	}
	return p.resolver.Resolve(ctx, query, candidates)
}

// Act resolves instruction to the best matching element and performs its
// operation. Text for fill-like operations comes from the resolver or from
// the first quoted string of the instruction.
func (p *Page) Act(ctx context.Context, instruction string) error {
	elements, err := p.Observe(ctx, instruction, page.ObserveOptions{IncludeIframes: true})
	if err != nil {
		return err
	}
	if len(elements) == 0 {
		return errors.Errorf("no element on the page matches %q", instruction)
	}

	top := elements[0]
	if top.Selector == "" {
		return errors.Errorf("matched %q but it has no selector", top.Description)
	}
	if !page.LocateOperation(top.Method).Valid() {
		top.Method = string(page.OpClick)
	}
	if len(top.Arguments) == 0 {
		if v, ok := quotedValue(instruction); ok {
			top.Arguments = []string{v}
		}
	}
	logger.G(ctx).WithField("element", top.Description).WithField("method", top.Method).Debug("act resolved")
	return p.ActObserved(ctx, top)
}

// ActObserved executes an observed element directly through its selector.
// Descriptors without a selector or with an unknown method are handed to Act.
func (p *Page) ActObserved(ctx context.Context, element page.ObservedElement) error {
	op := page.LocateOperation(element.Method)
	if element.Method == "" {
		op = page.OpClick
	}
	if element.Selector == "" || !op.Valid() {
		return p.Act(ctx, element.Description)
	}

	value := ""
	if len(element.Arguments) > 0 {
		value = element.Arguments[0]
	}
	if (op == page.OpFill || op == page.OpType || op == page.OpSelectOption) && value == "" {
		return errors.Errorf("%s on %q needs a value", op, element.Description)
	}
	return p.Locate(ctx, element.Selector, op, value)
}

func (p *Page) locator(selector string) (playwright.Locator, error) {
	frame, css := splitFrameSelector(selector)
	if frame == 0 {
		return p.pw.Locator(css).First(), nil
	}
	frames := p.pw.Frames()
	if frame >= len(frames) {
		return nil, errors.Errorf("frame %d is no longer attached", frame)
	}
	return frames[frame].Locator(css).First(), nil
}

// Locate performs op on the first element matching selector.
func (p *Page) Locate(ctx context.Context, selector string, op page.LocateOperation, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	loc, err := p.locator(selector)
	if err != nil {
		return err
	}

	timeout := playwright.Float(p.timeoutMs)
	switch op {
	case page.OpClick:
		err = loc.Click(playwright.LocatorClickOptions{Timeout: timeout})
	case page.OpFill:
		err = loc.Fill(value, playwright.LocatorFillOptions{Timeout: timeout})
	case page.OpType:
		err = loc.PressSequentially(value, playwright.LocatorPressSequentiallyOptions{Timeout: timeout})
	case page.OpHover:
		err = loc.Hover(playwright.LocatorHoverOptions{Timeout: timeout})
	case page.OpSelectOption:
		_, err = loc.SelectOption(playwright.SelectOptionValues{ValuesOrLabels: &[]string{value}},
			playwright.LocatorSelectOptionOptions{Timeout: timeout})
	case page.OpScrollTo:
		err = loc.ScrollIntoViewIfNeeded(playwright.LocatorScrollIntoViewIfNeededOptions{Timeout: timeout})
	default:
		return errors.Errorf("unsupported operation %q", op)
	}
	if err != nil {
		return errors.Wrapf(err, "%s failed on %s", op, selector)
	}
	return nil
}

// Extract returns the page content as markdown under its title.
func (p *Page) Extract(ctx context.Context, query string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	html, err := p.pw.Content()
	if err != nil {
		return "", errors.Wrap(err, "failed to read page content")
	}
	content, err := htmlToMarkdown(html, p.pw.URL(), MaxExtractChars)
	if err != nil {
		return "", err
	}
	logger.G(ctx).WithField("query", query).WithField("chars", len(content)).Debug("extracted page data")

	if title, err := p.pw.Title(); err == nil && title != "" {
		return "# " + title + "\n\n" + content, nil
	}
	return content, nil
}
