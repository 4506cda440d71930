package browser

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/antoinenguyen27/siren/pkg/types/page"
)

// maxSnapshotNodes bounds the number of candidates collected per frame.
const maxSnapshotNodes = 200

// snapshotScript collects visible interactive elements with a stable CSS
// selector, an accessible label and the natural operation for each.
const snapshotScript = `(limit) => {
  const sel = 'a[href],button,input:not([type=hidden]),select,textarea,summary,[role=button],[role=link],[role=menuitem],[role=tab],[role=checkbox],[role=option],[role=combobox],[role=textbox],[contenteditable=true],[onclick]';
  const visible = (el) => {
    const r = el.getBoundingClientRect();
    if (r.width === 0 && r.height === 0) return false;
    const s = getComputedStyle(el);
    return s.visibility !== 'hidden' && s.display !== 'none';
  };
  const esc = (v) => (window.CSS && CSS.escape) ? CSS.escape(v) : v.replace(/[^a-zA-Z0-9_-]/g, '\\$&');
  const path = (el) => {
    if (el.id && document.querySelectorAll('#' + esc(el.id)).length === 1) return '#' + esc(el.id);
    for (const a of ['data-testid', 'data-test', 'data-qa', 'data-cy']) {
      const v = el.getAttribute(a);
      if (v && document.querySelectorAll('[' + a + '="' + v.replace(/"/g, '\\"') + '"]').length === 1) return '[' + a + '="' + v.replace(/"/g, '\\"') + '"]';
    }
    const parts = [];
    let cur = el;
    while (cur && cur.nodeType === 1 && parts.length < 6) {
      let part = cur.tagName.toLowerCase();
      if (cur.id) { parts.unshift(part + '#' + esc(cur.id)); break; }
      const parent = cur.parentElement;
      if (parent) {
        const same = Array.from(parent.children).filter((c) => c.tagName === cur.tagName);
        if (same.length > 1) part += ':nth-of-type(' + (same.indexOf(cur) + 1) + ')';
      }
      parts.unshift(part);
      cur = parent;
    }
    return parts.join(' > ');
  };
  const label = (el) => {
    const byId = el.id ? document.querySelector('label[for="' + el.id.replace(/"/g, '\\"') + '"]') : null;
    return (el.getAttribute('aria-label') || (byId && byId.innerText) || el.getAttribute('placeholder') ||
      el.getAttribute('title') || el.innerText || el.value || el.getAttribute('name') || '').trim().replace(/\s+/g, ' ').slice(0, 120);
  };
  const out = [];
  for (const el of document.querySelectorAll(sel)) {
    if (out.length >= limit) break;
    if (!visible(el)) continue;
    out.push({
      tag: el.tagName.toLowerCase(),
      role: el.getAttribute('role') || '',
      type: el.getAttribute('type') || '',
      label: label(el),
      selector: path(el),
      editable: el.isContentEditable,
    });
  }
  return out;
}`

// snapshotNode is one element reported by snapshotScript.
type snapshotNode struct {
	Tag      string `mapstructure:"tag"`
	Role     string `mapstructure:"role"`
	Type     string `mapstructure:"type"`
	Label    string `mapstructure:"label"`
	Selector string `mapstructure:"selector"`
	Editable bool   `mapstructure:"editable"`
}

func decodeSnapshot(raw any) ([]snapshotNode, error) {
	var nodes []snapshotNode
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &nodes,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create snapshot decoder")
	}
	if err := dec.Decode(raw); err != nil {
		return nil, errors.Wrap(err, "unexpected snapshot shape")
	}
	return nodes, nil
}

func (n snapshotNode) kind() string {
	switch {
	case n.Role != "":
		return n.Role
	case n.Tag == "a":
		return "link"
	case n.Tag == "select":
		return "combobox"
	case n.Tag == "textarea", n.Editable:
		return "textbox"
	case n.Tag == "input":
		switch n.Type {
		case "checkbox", "radio":
			return n.Type
		case "submit", "button", "reset":
			return "button"
		case "search":
			return "searchbox"
		}
		return "textbox"
	}
	return n.Tag
}

func (n snapshotNode) method() string {
	switch n.kind() {
	case "textbox", "searchbox":
		return string(page.OpFill)
	case "combobox":
		if n.Tag == "select" {
			return string(page.OpSelectOption)
		}
	}
	return string(page.OpClick)
}

// element converts a node collected in frame into an observed element.
func (n snapshotNode) element(frame int) page.ObservedElement {
	desc := n.kind()
	if n.Label != "" {
		desc += " " + strconv.Quote(n.Label)
	}
	return page.ObservedElement{
		Selector:    frameSelector(frame, n.Selector),
		Description: desc,
		Method:      n.method(),
	}
}

// framePrefix marks selectors that live in a child frame of the page.
const framePrefix = "frame:"

func frameSelector(frame int, selector string) string {
	if frame == 0 || selector == "" {
		return selector
	}
	return framePrefix + strconv.Itoa(frame) + " " + selector
}

// splitFrameSelector undoes frameSelector. Selectors without a frame marker
// address the main frame.
func splitFrameSelector(selector string) (int, string) {
	if !strings.HasPrefix(selector, framePrefix) {
		return 0, selector
	}
	rest := strings.TrimPrefix(selector, framePrefix)
	idx, css, ok := strings.Cut(rest, " ")
	if !ok {
		return 0, selector
	}
	n, err := strconv.Atoi(idx)
	if err != nil || n < 0 {
		return 0, selector
	}
	return n, strings.TrimSpace(css)
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "of": true, "on": true, "in": true, "and": true,
	"or": true, "for": true, "all": true, "any": true, "is": true, "it": true, "me": true, "my": true,
	"find": true, "list": true, "click": true, "press": true, "tap": true, "open": true, "select": true,
	"type": true, "enter": true, "into": true, "page": true, "visible": true, "currently": true,
	"interactive": true, "elements": true, "element": true, "relevant": true, "include": true,
	"controls": true, "available": true, "what": true, "are": true, "that": true, "this": true, "with": true,
}

func keywords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var out []string
	seen := make(map[string]bool)
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// RankByKeywords orders elements by how many query keywords their
// description contains. When nothing matches, document order is kept so a
// generic query still lists the page.
func RankByKeywords(query string, elements []page.ObservedElement) []page.ObservedElement {
	words := keywords(query)
	type scored struct {
		el    page.ObservedElement
		score int
	}
	var matched []scored
	for _, el := range elements {
		desc := strings.ToLower(el.Description)
		score := 0
		for _, w := range words {
			if strings.Contains(desc, w) {
				score++
			}
		}
		if score > 0 {
			matched = append(matched, scored{el, score})
		}
	}
	if len(matched) == 0 {
		out := make([]page.ObservedElement, len(elements))
		copy(out, elements)
		return out
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].score > matched[j].score })
	out := make([]page.ObservedElement, len(matched))
	for i, m := range matched {
		out[i] = m.el
	}
	return out
}

var quoted = []struct{ open, close string }{{`"`, `"`}, {"'", "'"}, {"“", "”"}}

// quotedValue returns the first quoted string of an instruction, used as the
// text for fill-like operations.
func quotedValue(instruction string) (string, bool) {
	for _, q := range quoted {
		start := strings.Index(instruction, q.open)
		if start < 0 {
			continue
		}
		rest := instruction[start+len(q.open):]
		end := strings.Index(rest, q.close)
		if end < 0 {
			continue
		}
		return rest[:end], true
	}
	return "", false
}
