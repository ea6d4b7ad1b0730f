package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/pixscout/internal/logger"
	"github.com/jmylchreest/pixscout/internal/output"
	"github.com/jmylchreest/pixscout/pkg/pixscout"
	"github.com/jmylchreest/pixscout/pkg/store"
)

var extractCmd = &cobra.Command{
	Use:   "extract <url> [url...]",
	Short: "Extract images and text from web pages",
	Long: `Fetch each URL and report the images and text found on it.

URLs without a scheme get https://. Images are validated (HEAD, then a
short GET and a magic-byte check) and inspected for size and dimensions;
invalid ones are dropped.

With --render the page is loaded in headless Chrome. The browser
scrolls, clicks "load more" style controls and saves every image it
downloads to the content store (--store-dir).

Examples:
  pixscout extract example.com
  pixscout extract --cookie "sid=abc" -f yaml https://example.com/a https://example.com/b
  pixscout extract --render --wait-until domcontentloaded --timeout 60s https://example.com`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	flags := extractCmd.Flags()

	// Request settings
	flags.String("cookie", "", "Cookie header sent with page and image requests")
	flags.Bool("diagnostics", false, "include debug information in each result")

	// Output settings
	flags.StringP("output", "o", "", "output file (default: stdout)")
	flags.StringP("format", "f", "json", "output format: json, jsonl, yaml, markdown")
	flags.Bool("compact", false, "compact JSON output")
	flags.Bool("hide-invalid", false, "omit images that failed inspection from markdown reports")

	// Fetch settings
	flags.Duration("fetch-timeout", 10*time.Second, "timeout for each page fetch attempt")
	flags.Bool("legacy-style-patterns", false, "keep only the last background pattern's matches in <style> blocks")

	// Validation settings
	flags.IntP("concurrency", "c", 4, "images validated at once")
	flags.Float64("probe-rate", 0, "max image probes per second (0=unlimited)")
	flags.String("max-image-size", "32MB", "max bytes downloaded per image for inspection (e.g. 500KB, 10MiB)")

	// Rendering settings
	flags.Bool("render", false, "load the page in headless Chrome")
	flags.Int("max-scrolls", 30, "max scroll iterations in rendering mode")
	flags.Duration("scroll-pause", 700*time.Millisecond, "pause after each scroll")
	flags.Duration("timeout", 45*time.Second, "navigation timeout in rendering mode")
	flags.String("wait-until", "networkidle", "navigation wait: networkidle, domcontentloaded, load")
	flags.String("chrome-path", "", "Chrome or Chromium binary (default: auto-detect)")
	flags.Bool("stealth", true, "hide common headless browser fingerprints")
	flags.String("store-dir", pixscout.DefaultStoreDir(), "directory for captured images")
	flags.String("store-url-prefix", store.DefaultURLPrefix, "URL path captured images are reported under")
	flags.String("debug-dir", "", "write a screenshot here when rendering fails")

	for key, flag := range map[string]string{
		"store_dir":             "store-dir",
		"store_url_prefix":      "store-url-prefix",
		"chrome_path":           "chrome-path",
		"stealth":               "stealth",
		"concurrency":           "concurrency",
		"probe_rate":            "probe-rate",
		"max_image_size":        "max-image-size",
		"legacy_style_patterns": "legacy-style-patterns",
		"debug_dir":             "debug-dir",
		"fetch_timeout":         "fetch-timeout",
		"format":                "format",
		"cookie":                "cookie",
		"max_scrolls":           "max-scrolls",
		"scroll_pause":          "scroll-pause",
		"render_timeout":        "timeout",
		"wait_until":            "wait-until",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
}

func runExtract(cmd *cobra.Command, args []string) error {
	initLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	maxImageBytes, err := parseSize(viper.GetString("max_image_size"))
	if err != nil {
		return fmt.Errorf("invalid max-image-size: %w", err)
	}

	client, err := pixscout.New(
		pixscout.WithStoreDir(viper.GetString("store_dir")),
		pixscout.WithStoreURLPrefix(viper.GetString("store_url_prefix")),
		pixscout.WithChromePath(viper.GetString("chrome_path")),
		pixscout.WithStealth(viper.GetBool("stealth")),
		pixscout.WithConcurrency(viper.GetInt("concurrency")),
		pixscout.WithProbeRate(viper.GetFloat64("probe_rate")),
		pixscout.WithMaxImageBytes(maxImageBytes),
		pixscout.WithLegacyStylePatterns(viper.GetBool("legacy_style_patterns")),
		pixscout.WithDebugDir(viper.GetString("debug_dir")),
		pixscout.WithTimeout(viper.GetDuration("fetch_timeout")),
	)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		return err
	}
	defer func() { _ = client.Close() }()

	flags := cmd.Flags()
	render, _ := flags.GetBool("render")
	cookie := viper.GetString("cookie")
	diagnostics, _ := flags.GetBool("diagnostics")

	var renderReq pixscout.RenderRequest
	if render {
		renderReq = renderRequest(cookie, diagnostics)
		if err := client.ValidateRenderRequest(renderReq); err != nil {
			return fmt.Errorf("invalid rendering options: %w", err)
		}
	}

	// Setup output
	outFile := os.Stdout
	if outPath, _ := flags.GetString("output"); outPath != "" {
		f, err := os.Create(outPath) //#nosec G304 -- CLI tool writes to user-specified output file
		if err != nil {
			logger.Error("failed to create output file", "path", outPath, "error", err)
			return err
		}
		defer func() { _ = f.Close() }()
		outFile = f
	}

	compact, _ := flags.GetBool("compact")
	hideInvalid, _ := flags.GetBool("hide-invalid")
	format := output.Format(strings.ToLower(viper.GetString("format")))
	writer, err := output.NewWriter(outFile, format,
		output.WithPretty(!compact),
		output.WithInvalid(!hideInvalid))
	if err != nil {
		logger.Error("failed to create output writer", "format", format, "error", err)
		return err
	}

	mode := pixscout.ModeStatic
	if render {
		mode = pixscout.ModeRendered
	}
	logger.Info("starting extraction", "urls", len(args), "mode", mode)

	failures := 0
	for _, u := range args {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()

		var res *pixscout.Result
		if render {
			res = client.ExtractRendered(ctx, u, renderReq)
		} else {
			res = client.Extract(ctx, u, pixscout.Request{Cookie: cookie, Debug: diagnostics})
		}

		if res.Failed() {
			failures++
			logger.Warn("extraction failed", "url", u, "error", res.Err)
		} else {
			logInfo("%s: %d of %d images valid (%s)", res.URL, res.ValidImages, res.TotalFound,
				time.Since(start).Round(time.Millisecond))
		}
		if err := writer.Write(res); err != nil {
			logger.Error("failed to write output", "error", err)
			return err
		}
	}

	if err := writer.Close(); err != nil {
		logger.Error("failed to flush output", "error", err)
		return err
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("interrupted: %w", err)
	}
	if failures == len(args) {
		return fmt.Errorf("all %d extractions failed", failures)
	}
	return nil
}

// renderRequest builds rendering options from flags, config and environment.
func renderRequest(cookie string, debug bool) pixscout.RenderRequest {
	return pixscout.RenderRequest{
		Cookie:      cookie,
		Debug:       debug,
		MaxScrolls:  viper.GetInt("max_scrolls"),
		ScrollPause: viper.GetDuration("scroll_pause"),
		Timeout:     viper.GetDuration("render_timeout"),
		WaitUntil:   viper.GetString("wait_until"),
	}
}

// parseSize accepts humanized sizes such as "32MB" or "10MiB". Empty or
// "0" leaves the library default.
func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}
