// Command pattile renders pattern scenes described in YAML to PNG files.
//
// Pages of a scene are rendered on a pool of workers, each page with its own
// graphics state and pattern cache. Cache and allocator statistics are
// printed per page when rendering finishes.
//
// Usage:
//
//	pattile --config scene.yaml --out pages/
//	pattile --config scene.yaml --out - > page.png
package main

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/pflag"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/pattern"
	_ "github.com/gogpu/pattern/clist"
	"github.com/gogpu/pattern/halftone"
	"github.com/gogpu/pattern/internal/parallel"
)

type options struct {
	config      string
	out         string
	jobs        int
	maxTiles    int
	maxBits     int
	memLimit    int
	forceRaster bool
	verbose     bool
}

func main() {
	os.Exit(run())
}

func run() int {
	var opt options
	var showHelp bool
	pflag.StringVarP(&opt.config, "config", "c", "", "Scene file (YAML)")
	pflag.StringVarP(&opt.out, "out", "o", ".", "Output directory, or - to write a single page to stdout")
	pflag.IntVarP(&opt.jobs, "jobs", "j", 4, "Pages rendered at once")
	pflag.IntVar(&opt.maxTiles, "max-tiles", pattern.DefaultMaxTiles, "Pattern cache slots per page")
	pflag.IntVar(&opt.maxBits, "max-bits", pattern.DefaultMaxBits, "Pattern cache budget per page in bytes")
	pflag.IntVar(&opt.memLimit, "mem-limit", 0, "Allocator limit per page in bytes (0 = unlimited)")
	pflag.BoolVar(&opt.forceRaster, "force-raster", false, "Never accumulate patterns as command lists")
	pflag.BoolVarP(&opt.verbose, "verbose", "v", false, "Log cache activity to stderr")
	pflag.BoolVarP(&showHelp, "help", "h", false, "Show help message")
	pflag.Parse()

	if showHelp {
		fmt.Fprintln(os.Stderr, "Usage: pattile --config scene.yaml [flags]")
		pflag.PrintDefaults()
		return 0
	}
	if opt.config == "" {
		fmt.Fprintln(os.Stderr, "Error: --config is required")
		return 2
	}
	if opt.verbose {
		pattern.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	scene, err := LoadScene(opt.config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if opt.out == "-" {
		if len(scene.Pages) != 1 {
			fmt.Fprintf(os.Stderr, "Error: --out - needs a single page, scene has %d\n", len(scene.Pages))
			return 1
		}
		if term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: refusing to write PNG data to a terminal")
			return 1
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results := renderScene(ctx, scene, &opt)
	p := message.NewPrinter(language.English)
	status := 0
	for _, r := range results {
		if r.err != nil {
			fmt.Fprintf(os.Stderr, "Error: page %s: %v\n", r.name, r.err)
			status = 1
			continue
		}
		printStats(p, os.Stderr, r)
	}
	return status
}

// pageResult is the outcome of rendering one page.
type pageResult struct {
	name  string
	file  string
	cache pattern.CacheStats
	alloc pattern.AllocStats
	err   error
}

// renderScene renders every page on a pool of opt.jobs workers and
// returns the results in page order.
func renderScene(ctx context.Context, scene *Scene, opt *options) []pageResult {
	hts := newHalftones(scene)
	results := make([]pageResult, len(scene.Pages))
	jobs := make([]parallel.Job, len(scene.Pages))
	for i, pg := range scene.Pages {
		jobs[i] = func(ctx context.Context) error {
			results[i] = renderPage(ctx, scene, pg, opt, hts)
			return results[i].err
		}
	}
	pool := parallel.NewPool(max(opt.jobs, 1))
	defer pool.Close()
	for i, err := range pool.Run(ctx, jobs) {
		if err != nil && results[i].err == nil {
			results[i] = pageResult{name: scene.Pages[i].Name, err: err}
		}
	}
	return results
}

// halftones holds one tile cache per halftone order the scene uses. The
// map is filled before rendering starts and only read afterwards.
type halftones map[string]*halftone.TileCache

func newHalftones(scene *Scene) halftones {
	hts := make(halftones)
	for _, ps := range scene.Patterns {
		if ps.Kind != "halftone" || hts[ps.Order] != nil {
			continue
		}
		o, _ := halftone.Predefined(ps.Order)
		hts[ps.Order] = halftone.NewTileCache(o, 0)
	}
	return hts
}

func renderPage(ctx context.Context, scene *Scene, pg *Page, opt *options, hts halftones) (res pageResult) {
	res.name = pg.Name
	alloc := pattern.NewAccountingAllocator(opt.memLimit)
	dev := pattern.NewMemDevice(pg.Width, pg.Height, pattern.RGBAColorInfo, false, alloc)
	if res.err = dev.Open(); res.err != nil {
		return res
	}
	defer func() {
		res.err = errors.Join(res.err, dev.Close())
		res.alloc = alloc.Stats()
		if res.alloc.Live != 0 || res.alloc.DoubleFrees != 0 {
			pattern.Logger().Warn("pattile: allocator not clean",
				"page", pg.Name, "live", res.alloc.Live, "double_frees", res.alloc.DoubleFrees)
		}
	}()

	gs := pattern.NewGState(dev,
		pattern.WithContext(ctx),
		pattern.WithAllocator(alloc),
		pattern.WithCacheSize(opt.maxTiles, opt.maxBits),
		pattern.WithForceRaster(opt.forceRaster),
	)
	defer func() {
		res.err = errors.Join(res.err, gs.FreeChain())
	}()

	gs.SetColor(pg.background)
	if res.err = gs.FillRect(0, 0, float64(pg.Width), float64(pg.Height)); res.err != nil {
		return res
	}
	insts := make(map[string]*pattern.Instance)
	for _, f := range pg.Fills {
		if res.err = drawFill(gs, scene, f, insts, hts); res.err != nil {
			return res
		}
	}
	cache, err := gs.PatternCache()
	if err != nil {
		res.err = err
		return res
	}
	res.cache = cache.Stats()
	res.file, res.err = writePage(dev, pg, opt.out)
	return res
}

func drawFill(gs *pattern.GState, scene *Scene, f *Fill, insts map[string]*pattern.Instance, hts halftones) error {
	gs.Save()
	defer gs.Restore()
	gs.SetBlendMode(f.blend)
	if f.Alpha != nil {
		gs.SetAlpha(*f.Alpha)
	}
	if f.Pattern == "" {
		gs.SetColor(f.color)
	} else {
		inst, ok := insts[f.Pattern]
		if !ok {
			var err error
			inst, err = makePattern(gs, scene.Patterns[f.Pattern], hts)
			if err != nil {
				return fmt.Errorf("pattern %q: %w", f.Pattern, err)
			}
			insts[f.Pattern] = inst
		}
		var base *pattern.RGBA
		if inst.Template.PaintType == pattern.PaintUncolored {
			base = &f.color
		}
		if err := gs.SetPattern(inst, base); err != nil {
			return fmt.Errorf("pattern %q: %w", f.Pattern, err)
		}
	}
	if f.Rect != nil {
		return gs.FillRect(f.Rect[0], f.Rect[1], f.Rect[2], f.Rect[3])
	}
	p := pattern.NewPath()
	p.Circle(f.Circle[0], f.Circle[1], f.Circle[2])
	return gs.Fill(p)
}

// makePattern builds an instance for ps bound to gs's current
// transformation.
func makePattern(gs *pattern.GState, ps *PatternSpec, hts halftones) (*pattern.Instance, error) {
	tmpl := &pattern.Template{
		PaintType:        pattern.PaintColored,
		TilingType:       pattern.TilingConstant,
		BBox:             pattern.Rect{Max: pattern.Pt(ps.Cell, ps.Cell)},
		XStep:            ps.Step[0],
		YStep:            ps.Step[1],
		UsesTransparency: ps.Transparent,
		PaintProc:        paintProc(ps, hts),
	}
	if ps.Uncolored {
		tmpl.PaintType = pattern.PaintUncolored
	}
	m := pattern.Scale(ps.Scale, ps.Scale).Multiply(pattern.Rotate(ps.Rotate * math.Pi / 180))
	inst, err := pattern.MakePattern(tmpl, m, gs)
	if err != nil {
		return nil, err
	}
	inst.RequestDeferred(ps.Deferred)
	return inst, nil
}

// paintProc returns the procedure drawing one cell of ps. Colored cells
// fill their background with the first color and the figure with the
// second; uncolored cells draw only the figure.
func paintProc(ps *PatternSpec, hts halftones) pattern.PaintProc {
	c := ps.Cell
	bg, fg := ps.colors[0], ps.colors[len(ps.colors)-1]
	colored := !ps.Uncolored
	return func(pc *pattern.PatternColor, gs *pattern.GState) error {
		if ps.Kind == "halftone" {
			return paintHalftone(pc, gs, hts[ps.Order], ps.Gray, bg, fg, colored)
		}
		if colored {
			gs.SetColor(bg)
			if err := gs.FillRect(0, 0, c, c); err != nil {
				return err
			}
		}
		gs.SetColor(fg)
		switch ps.Kind {
		case "checker":
			if err := gs.FillRect(0, 0, c/2, c/2); err != nil {
				return err
			}
			return gs.FillRect(c/2, c/2, c/2, c/2)
		case "stripes":
			return gs.FillRect(0, 0, c/2, c)
		default:
			p := pattern.NewPath()
			p.Circle(c/2, c/2, c/3)
			return gs.Fill(p)
		}
	}
}

// paintHalftone copies the cached halftone cell for gray straight onto
// the tile's pixels. Set bits are the figure.
func paintHalftone(pc *pattern.PatternColor, gs *pattern.GState, tc *halftone.TileCache, gray int, bg, fg pattern.RGBA, colored bool) error {
	dev := gs.Device()
	ci := dev.Info().Color
	t := tc.Gray(gray)
	size := pc.Pattern.Size
	c0, c1 := pattern.NoColor, ci.Encode(fg)
	if colored {
		c0 = ci.Encode(bg)
	}
	return t.Paint(dev, 0, 0, size.X, size.Y, c0, c1)
}

// writePage encodes dev as PNG into dir, or to stdout when dir is "-".
func writePage(dev *pattern.MemDevice, pg *Page, dir string) (string, error) {
	img := dev.ToImage()
	if dir == "-" {
		return "-", png.Encode(os.Stdout, img)
	}
	name := filepath.Join(dir, pg.Name+".png")
	f, err := os.Create(name)
	if err != nil {
		return "", err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", err
	}
	return name, f.Close()
}

func printStats(p *message.Printer, w io.Writer, r pageResult) {
	c := r.cache
	p.Fprintf(w, "%s -> %s\n", r.name, r.file)
	p.Fprintf(w, "  cache: %d/%d tiles, %d/%d bytes, %d hits, %d misses, %d evictions\n",
		c.TilesUsed, c.Slots, c.BitsUsed, c.MaxBits, c.Hits, c.Misses, c.Evictions)
	p.Fprintf(w, "  memory: peak %d bytes, %d allocations\n", r.alloc.Peak, r.alloc.Allocs)
}
