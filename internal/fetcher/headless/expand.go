package headless

import "fmt"

// expansionScript clicks visible disclosure widgets and cycles price/option
// selects. It resolves to the number of clicks performed. Errors from a single
// widget are swallowed so one broken accordion never aborts the page.
func expansionScript(maxClicks int) string {
	return fmt.Sprintf(`(async () => {
  const limit = %d;
  const sleep = (ms) => new Promise((r) => setTimeout(r, ms));
  const visible = (el) => !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);
  const selectors = [
    'button[aria-expanded="false"]',
    '[aria-expanded="false"][role="button"]',
    '[class*="accordion"] button',
    'button[class*="accordion"]',
    '[class*="tab"] button',
    'button[class*="price"]',
    'div[class*="pricing"] button',
    'button[class*="faq"]',
    'div[class*="faq"] button',
    'button[class*="option"]',
    '[class*="dropdown"] button',
    '[class*="collapse"] button',
  ];
  const seen = new Set();
  let clicks = 0;
  for (const sel of selectors) {
    let nodes = [];
    try { nodes = document.querySelectorAll(sel); } catch (e) { continue; }
    for (const el of nodes) {
      if (clicks >= limit) return clicks;
      if (seen.has(el) || !visible(el)) continue;
      seen.add(el);
      if (el.getAttribute('aria-expanded') === 'true') continue;
      try { el.click(); clicks++; await sleep(300); } catch (e) {}
    }
  }
  const selects = document.querySelectorAll('select[name*="price"], select[name*="option"], select');
  for (const sel of selects) {
    if (!visible(sel)) continue;
    const options = Array.from(sel.options || []).slice(0, 5);
    for (const opt of options) {
      if (clicks >= limit) return clicks;
      try {
        sel.value = opt.value;
        sel.dispatchEvent(new Event('change', { bubbles: true }));
        clicks++;
        await sleep(300);
      } catch (e) {}
    }
  }
  return clicks;
})()`, maxClicks)
}
