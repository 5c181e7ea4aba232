// File: cmd/render.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/rendercore/internal/browser"
	"github.com/xkilldash9x/rendercore/internal/browser/compositor"
	"github.com/xkilldash9x/rendercore/internal/browser/network"
	"github.com/xkilldash9x/rendercore/internal/browser/paint"
	"github.com/xkilldash9x/rendercore/internal/browser/raster"
	"github.com/xkilldash9x/rendercore/internal/browser/session"
	"github.com/xkilldash9x/rendercore/internal/config"
	"github.com/xkilldash9x/rendercore/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// renderOptions are the flags that do not map onto config keys.
type renderOptions struct {
	frames  int
	dump    string
	png     string
	timeout time.Duration
}

// newFetcher is swapped out by tests.
var newFetcher = func(cfg config.NetworkConfig, logger *zap.Logger) network.Fetcher {
	cc := network.NewClientConfig()
	cc.RequestTimeout = cfg.Timeout
	cc.MaxBodyBytes = cfg.MaxBodyBytes
	cc.InsecureSkipVerify = cfg.IgnoreTLSErrors
	if cfg.UserAgent != "" {
		cc.UserAgent = cfg.UserAgent
	}
	return network.NewHTTPFetcher(cc, network.NewClient(cc), logger)
}

func newRenderCmd() *cobra.Command {
	var opts renderOptions
	cmd := &cobra.Command{
		Use:   "render <url|file>",
		Short: "Load a page, run a number of frames and write what was drawn",
		Long: `Loads the page in a single tab and drives the tab worker and the
presentation side for --frames animation frames. The committed display list,
layers and accessibility tree can be written as JSON with --dump, and the final
window can be saved as a PNG with --png.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if opts.frames < 1 {
				return fmt.Errorf("--frames must be at least 1")
			}
			return runRender(cmd.Context(), cmd.OutOrStdout(), cfg, resolveTarget(args[0]), opts)
		},
	}

	f := cmd.Flags()
	f.Float64("width", 0, "window width in pixels")
	f.Float64("height", 0, "window height in pixels, chrome included")
	f.Float64("zoom", 0, "page zoom factor")
	f.Bool("accessibility", false, "build the accessibility tree")
	f.Bool("compositing", true, "composite animated subtrees into their own layers")
	f.Bool("script", true, "run page scripts")
	overrides(f, "width", "render.viewport_width")
	overrides(f, "height", "render.viewport_height")
	overrides(f, "zoom", "render.zoom")
	overrides(f, "accessibility", "render.accessibility")
	overrides(f, "compositing", "render.compositing")
	overrides(f, "script", "script.enabled")

	f.IntVarP(&opts.frames, "frames", "n", 3, "animation frames to run")
	f.StringVar(&opts.dump, "dump", "", `write the committed state as JSON to this file ("-" for stdout)`)
	f.StringVar(&opts.png, "png", "", "save the final window to this PNG file")
	f.DurationVar(&opts.timeout, "timeout", time.Minute, "give up after this long")
	return cmd
}

// resolveTarget turns an existing file path into a file URL and adds https://
// to bare host names.
func resolveTarget(arg string) string {
	if strings.Contains(arg, "://") || strings.HasPrefix(arg, "data:") {
		return arg
	}
	if _, err := os.Stat(arg); err == nil {
		if abs, err := filepath.Abs(arg); err == nil {
			return "file://" + filepath.ToSlash(abs)
		}
	}
	return "https://" + arg
}

func browserOptions(cfg config.Interface) browser.Options {
	r, s := cfg.Render(), cfg.Script()
	return browser.Options{
		Width:         r.ViewportWidth,
		Height:        r.ViewportHeight,
		ChromeHeight:  r.ChromeHeight,
		FrameInterval: r.FrameInterval,
		HomeURL:       browser.BlankPage,
		Tab: session.Options{
			Width:         r.ViewportWidth,
			Height:        r.ViewportHeight - r.ChromeHeight,
			Zoom:          r.Zoom,
			FrameInterval: r.FrameInterval,
			Compositing:   r.Compositing,
			Accessibility: r.Accessibility,
			ScriptEnabled: s.Enabled,
			ScriptTimeout: s.Timeout,
		},
	}
}

func runRender(ctx context.Context, out io.Writer, cfg *config.Config, target string, opts renderOptions) error {
	logger := observability.GetLogger().Named("render")
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	var backend raster.Backend = &raster.RecordingBackend{}
	if opts.png != "" {
		gg, err := raster.NewGGBackend(logger)
		if err != nil {
			return fmt.Errorf("failed to create raster backend: %w", err)
		}
		backend = gg
	}

	b := browser.New(newFetcher(cfg.Network(), logger), backend, browserOptions(cfg), logger)
	tab := b.NewTab(target)
	defer tab.Quit()
	logger.Info("Rendering", zap.String("url", target), zap.Int("frames", opts.frames))

	if err := driveFrames(ctx, b, tab, opts.frames, cfg.Render().FrameInterval); err != nil {
		return err
	}

	snap := b.Snapshot()
	if snap.DisplayList == nil {
		return fmt.Errorf("nothing was committed for %s", target)
	}
	if opts.png != "" {
		surface, ok := b.Surface().(*raster.GGSurface)
		if !ok {
			return errors.New("window surface cannot be saved as PNG")
		}
		if err := surface.SavePNG(opts.png); err != nil {
			return fmt.Errorf("failed to write %s: %w", opts.png, err)
		}
		logger.Info("Saved window", zap.String("path", opts.png))
	}
	if opts.dump != "" {
		return writeDump(out, opts.dump, newRenderDump(b, snap, opts.frames))
	}

	fmt.Fprintf(out, "Rendered %s: %d display items, %d layers, %d draws\n",
		snap.URL, snap.DisplayList.Len(), b.Layers(), b.Stats().Draws)
	return nil
}

// driveFrames runs the tab worker and the presentation side in lock step on
// this goroutine, paced to the frame interval so timers can fire.
func driveFrames(ctx context.Context, b *browser.Browser, tab *session.Tab, frames int, interval time.Duration) error {
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	for i := 0; i < frames; i++ {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("render stopped after %d frames: %w", i, ctx.Err())
			}
			return err
		}
		tab.Runner().RunUntilIdle()
		b.ScheduleAnimationFrame()
		tab.Runner().RunUntilIdle()
		b.CompositeRasterAndDraw()
	}
	return nil
}

// renderDump is the JSON written by --dump.
type renderDump struct {
	URL           string                     `json:"url"`
	Frames        int                        `json:"frames"`
	Scroll        float64                    `json:"scroll"`
	Height        float64                    `json:"height"`
	Stats         compositor.Stats           `json:"stats"`
	Layers        []browser.LayerInfo        `json:"layers"`
	DisplayList   []dumpItem                 `json:"display_list"`
	Accessibility *session.AccessibilityNode `json:"accessibility,omitempty"`
	Ops           []string                   `json:"ops,omitempty"`
}

type dumpItem struct {
	Item     string     `json:"item"`
	Children []dumpItem `json:"children,omitempty"`
}

func newRenderDump(b *browser.Browser, snap browser.Snapshot, frames int) renderDump {
	d := renderDump{
		URL:           snap.URL,
		Frames:        frames,
		Scroll:        snap.Scroll,
		Height:        snap.Height,
		Stats:         b.Stats(),
		Layers:        b.LayerInfos(),
		DisplayList:   dumpItems(snap.DisplayList.Items),
		Accessibility: snap.Accessibility,
	}
	if rec, ok := b.Surface().(*raster.Recorder); ok {
		for _, op := range rec.Ops {
			d.Ops = append(d.Ops, op.String())
		}
	}
	return d
}

func dumpItems(items []paint.Item) []dumpItem {
	out := make([]dumpItem, 0, len(items))
	for _, it := range items {
		d := dumpItem{Item: fmt.Sprint(it)}
		if e, ok := it.(*paint.Effect); ok {
			d.Children = dumpItems(e.Children)
		}
		out = append(out, d)
	}
	return out
}

func writeDump(out io.Writer, path string, d renderDump) error {
	w := out
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create dump file: %w", err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("failed to encode dump: %w", err)
	}
	return nil
}
