package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/jmylchreest/pixscout/internal/logger"
)

// stealthScript patches the most common headless fingerprints before any
// page script runs.
const stealthScript = `
(() => {
  const define = (obj, prop, value) => {
    try { Object.defineProperty(obj, prop, { get: () => value, configurable: true }); } catch (e) {}
  };

  define(navigator, 'webdriver', undefined);
  try { delete Object.getPrototypeOf(navigator).webdriver; } catch (e) {}

  define(navigator, 'languages', Object.freeze(['zh-CN', 'zh', 'en']));
  if (!navigator.hardwareConcurrency) define(navigator, 'hardwareConcurrency', 8);
  if (!navigator.deviceMemory) define(navigator, 'deviceMemory', 8);

  if (navigator.plugins && navigator.plugins.length === 0) {
    const fake = [
      { name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer' },
      { name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai' },
    ];
    const list = Object.create(PluginArray.prototype);
    fake.forEach((p, i) => {
      const plugin = Object.create(Plugin.prototype);
      Object.defineProperties(plugin, {
        name: { value: p.name, enumerable: true },
        filename: { value: p.filename, enumerable: true },
        description: { value: '', enumerable: true },
        length: { value: 1, enumerable: true },
      });
      list[i] = plugin;
    });
    Object.defineProperty(list, 'length', { value: fake.length });
    list.item = (i) => list[i] || null;
    define(navigator, 'plugins', list);
  }

  if (!window.chrome) {
    Object.defineProperty(window, 'chrome', { value: {}, writable: true, configurable: false });
  }
  if (!window.chrome.runtime) {
    window.chrome.runtime = { connect() {}, sendMessage() {} };
  }

  const query = Permissions.prototype.query;
  Permissions.prototype.query = function (params) {
    if (params && params.name === 'notifications') {
      return Promise.resolve({ state: Notification.permission });
    }
    return query.call(this, params);
  };

  const patchWebGL = (proto) => {
    if (!proto) return;
    const original = proto.getParameter;
    proto.getParameter = new Proxy(original, {
      apply(target, ctx, args) {
        if (args[0] === 37445) return 'Intel Inc.';
        if (args[0] === 37446) return 'Intel Iris OpenGL Engine';
        return Reflect.apply(target, ctx, args);
      },
    });
  };
  try { patchWebGL(WebGLRenderingContext.prototype); } catch (e) {}
  try { patchWebGL(WebGL2RenderingContext.prototype); } catch (e) {}
})();
`

// headlessOptions are the baseline flags for every session.
func headlessOptions() []chromedp.ExecAllocatorOption {
	return []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	}
}

// stealthOptions are added on top of headlessOptions in stealth mode.
func stealthOptions() []chromedp.ExecAllocatorOption {
	return []chromedp.ExecAllocatorOption{
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
		chromedp.Flag("excludeSwitches", "enable-automation"),
		chromedp.Flag("useAutomationExtension", false),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("allow-running-insecure-content", true),
		chromedp.Flag("lang", "zh-CN,zh,en"),
	}
}

// injectStealth registers the stealth script for every new document.
func injectStealth() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
		return err
	})
}

// saveDebugScreenshot captures the current tab into dir. Failures are only
// logged since the browser may already be unusable.
func saveDebugScreenshot(ctx context.Context, dir string) string {
	if dir == "" {
		return ""
	}
	captureCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var shot []byte
	if err := chromedp.Run(captureCtx, chromedp.CaptureScreenshot(&shot)); err != nil {
		logger.Debug("debug screenshot failed", "error", err)
		return ""
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Debug("debug directory unavailable", "dir", dir, "error", err)
		return ""
	}
	path := filepath.Join(dir, fmt.Sprintf("pixscout-render-%d.png", time.Now().UnixNano()))
	if err := os.WriteFile(path, shot, 0o644); err != nil {
		logger.Debug("debug screenshot not written", "path", path, "error", err)
		return ""
	}
	logger.Info("debug screenshot saved", "path", path)
	return path
}
