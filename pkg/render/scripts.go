package render

// revealAttr tags elements chosen by revealScript so they can be clicked
// by selector.
const revealAttr = "data-pixscout-reveal"

// revealPattern matches the visible text of "load more" style controls.
const revealPattern = `加载更多|查看更多|更多|展开|Load more|More|Show more|View more|Expand`

const (
	scrollScript = `window.scrollBy(0, Math.max(600, window.innerHeight));`
	heightScript = `document.body ? document.body.scrollHeight : 0`
)

// revealScript tags visible "load more" style controls and returns how
// many were tagged. Any element may be the control; when a match is nested
// only the innermost element whose text matches is tagged.
const revealScript = `(() => {
  const attr = '` + revealAttr + `';
  document.querySelectorAll('[' + attr + ']').forEach(el => el.removeAttribute(attr));
  if (!document.body) return 0;
  const pattern = /` + revealPattern + `/i;
  const skip = new Set(['SCRIPT', 'STYLE', 'NOSCRIPT', 'TEMPLATE', 'svg']);
  const textOf = el => (el.innerText || el.textContent || '').trim();
  const matches = el => !skip.has(el.tagName) && pattern.test(textOf(el));
  const visible = el => {
    const r = el.getBoundingClientRect();
    const s = getComputedStyle(el);
    return r.width > 0 && r.height > 0 && s.visibility !== 'hidden' && s.display !== 'none';
  };
  let n = 0;
  document.body.querySelectorAll('*').forEach(el => {
    if (!matches(el) || Array.from(el.children).some(matches) || !visible(el)) return;
    el.setAttribute(attr, String(n++));
  });
  return n;
})()`

// nudgeScript scrolls every lazily loaded element into view.
const nudgeScript = `(() => {
  const nodes = document.querySelectorAll('img, [data-src], [data-original], [data-lazy-src]');
  nodes.forEach(el => { try { el.scrollIntoView({behavior: 'instant', block: 'center'}); } catch (e) {} });
  return nodes.length;
})()`

// scanScript collects image URLs and raw text from the rendered DOM.
const scanScript = `(() => {
  const urls = new Set();
  const abs = u => { try { return u ? new URL(u, location.href).href : null; } catch (e) { return null; } };
  const add = u => { const a = abs(u); if (a) urls.add(a); };

  document.querySelectorAll('img').forEach(img => {
    if (img.currentSrc) add(img.currentSrc);
    ['src', 'data-src', 'data-lazy-src', 'data-original'].forEach(k => add(img.getAttribute(k)));
  });
  document.querySelectorAll('source, img').forEach(el => {
    const srcset = el.getAttribute('srcset') || el.getAttribute('data-srcset');
    if (srcset) srcset.split(',').map(s => s.trim().split(/\s+/)[0]).forEach(add);
  });
  document.querySelectorAll('video[poster]').forEach(v => add(v.getAttribute('poster')));
  document.querySelectorAll('*').forEach(el => {
    const bg = getComputedStyle(el).backgroundImage;
    if (!bg || !bg.includes('url(')) return;
    for (const m of bg.matchAll(/url\(\s*["']?([^"')]+)["']?\s*\)/gi)) {
      const a = abs(m[1]);
      if (a && !a.startsWith('data:')) urls.add(a);
    }
  });
  document.querySelectorAll('meta[property="og:image"], meta[property="og:image:url"], meta[name="twitter:image"], meta[itemprop="image"]')
    .forEach(m => add(m.getAttribute('content')));
  document.querySelectorAll('link[rel="preload"][as="image"]').forEach(l => add(l.getAttribute('href')));

  const text = { title: document.title || '', headings: [], paragraphs: [], lists: [], links: [], fullText: '' };
  document.querySelectorAll('h1, h2, h3, h4, h5, h6').forEach(h => {
    const t = h.textContent.trim();
    if (t) text.headings.push({ level: h.tagName.toLowerCase(), text: t });
  });
  document.querySelectorAll('p').forEach(p => {
    const t = p.textContent.trim();
    if (t) text.paragraphs.push(t);
  });
  document.querySelectorAll('ul, ol').forEach(list => {
    const items = [];
    list.querySelectorAll('li').forEach(li => { const t = li.textContent.trim(); if (t) items.push(t); });
    if (items.length) text.lists.push({ type: list.tagName.toLowerCase(), items });
  });
  document.querySelectorAll('a[href]').forEach(a => {
    const t = a.textContent.trim();
    const href = abs(a.getAttribute('href'));
    if (t && href) text.links.push({ text: t, url: href });
  });
  if (document.body) {
    const clone = document.body.cloneNode(true);
    clone.querySelectorAll('script, style, nav, header, footer, aside').forEach(el => el.remove());
    text.fullText = clone.textContent || '';
  }

  return { urls: Array.from(urls), text };
})()`
