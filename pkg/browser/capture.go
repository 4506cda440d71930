package browser

import (
	"context"

	"github.com/playwright-community/playwright-go"

	"github.com/antoinenguyen27/siren/pkg/domcapture"
	"github.com/antoinenguyen27/siren/pkg/logger"
)

// captureBinding is the page-side function the capture script reports to.
const captureBinding = "__sirenCapture"

// captureScript listens for user events in every frame and reports them,
// together with batched mutation counts, through captureBinding. Password
// values never leave the page.
const captureScript = `(() => {
  if (window.__sirenCaptureInstalled || typeof window.__sirenCapture !== 'function') return;
  window.__sirenCaptureInstalled = true;
  const send = (type, payload) => { try { window.__sirenCapture({ type, payload }); } catch (_) {} };
  const node = (el) => {
    if (!el || el.nodeType !== 1) return {};
    const a = (n) => el.getAttribute(n) || '';
    return {
      tag: el.tagName.toLowerCase(), id: el.id || '', role: a('role'), name: a('name'), type: a('type'),
      ariaLabel: a('aria-label'), title: a('title'), dataTestId: a('data-testid'), dataTest: a('data-test'),
      dataQa: a('data-qa'), dataCy: a('data-cy'), classes: Array.from(el.classList || []),
      text: (el.innerText || el.value || '').slice(0, 400),
    };
  };
  const css = (el) => {
    const parts = [];
    while (el && el.nodeType === 1 && parts.length < 8) {
      let p = el.tagName.toLowerCase();
      if (el.id) { parts.unshift(p + '#' + el.id); break; }
      const parent = el.parentElement;
      if (parent) {
        const same = Array.from(parent.children).filter((c) => c.tagName === el.tagName);
        if (same.length > 1) p += ':nth-of-type(' + (same.indexOf(el) + 1) + ')';
      }
      parts.unshift(p);
      el = parent;
    }
    return parts.join(' > ');
  };
  const ancestry = (el) => {
    const out = [];
    let cur = el;
    while (cur && out.length < 4) { out.push(node(cur)); cur = cur.parentElement; }
    return out;
  };
  const report = (kind) => (e) => {
    const el = e.target;
    const isPassword = el && el.type === 'password';
    const payload = { kind, ts: Date.now(), frameUrl: location.href, target: node(el), ancestry: ancestry(el), css: css(el) };
    if ((kind === 'input' || kind === 'change') && !isPassword) payload.value = String(el.value || '').slice(0, 200);
    if (kind === 'click') payload.button = e.button;
    send('event', payload);
  };
  for (const kind of ['click', 'input', 'change', 'submit']) document.addEventListener(kind, report(kind), true);
  let pending = 0;
  new MutationObserver((list) => { pending += list.length; }).observe(document, { subtree: true, childList: true, attributes: true, characterData: true });
  setInterval(() => { if (pending > 0) { send('mutations', { frameUrl: location.href, count: pending }); pending = 0; } }, 200);
})();`

// captureRouter forwards binding calls to the active capture session of a tab.
type captureRouter struct {
	ctx      context.Context
	sessions *domcapture.Manager
	tabID    string
}

func (r *captureRouter) handle(_ *playwright.BindingSource, args ...any) any {
	if len(args) == 0 {
		return nil
	}
	session, ok := r.sessions.Get(r.tabID)
	if !ok {
		return nil
	}
	msg, err := domcapture.DecodeMessage(args[0])
	if err == nil {
		err = session.Apply(msg)
	}
	if err != nil {
		logger.G(r.ctx).WithError(err).WithField("tab_id", r.tabID).Debug("dropping capture message")
	}
	return nil
}
