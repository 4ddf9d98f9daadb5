package batch

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/fpang/photo-derive/internal/derive"
	"github.com/fpang/photo-derive/internal/engine"
	"github.com/fpang/photo-derive/internal/saliency"
	"github.com/fpang/photo-derive/internal/store"
)

type centerCropper struct{}

func (centerCropper) BestCrop(img image.Image, w, h int) (image.Rectangle, error) {
	return saliency.CenterOn(img.Bounds(), w, h, img.Bounds()), nil
}

func photo(t *testing.T, w, h int, format engine.Format) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	data, err := engine.Encode(img, format, 90)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data
}

// countingVariants wraps the real transforms and counts how often each runs.
func countingVariants(counts *sync.Map) []derive.Variant {
	opts := derive.DefaultOptions()
	opts.LongestSide = 64
	opts.BlurSigma = 2

	variants := derive.Variants(opts, centerCropper{})
	for i, v := range variants {
		inner := v.Transform
		suffix := v.Suffix
		variants[i].Transform = func(ctx context.Context, src *derive.Source) ([]byte, error) {
			n, _ := counts.LoadOrStore(suffix, new(atomic.Int32))
			n.(*atomic.Int32).Add(1)
			return inner(ctx, src)
		}
	}
	return variants
}

func runs(counts *sync.Map) int {
	total := 0
	counts.Range(func(_, v any) bool {
		total += int(v.(*atomic.Int32).Load())
		return true
	})
	return total
}

func TestRunWritesEveryVariant(t *testing.T) {
	st := store.NewMemory()
	st.Put("in/a.jpg", photo(t, 120, 80, engine.JPEG))
	st.Put("in/b.png", photo(t, 80, 120, engine.PNG))

	var counts sync.Map
	summary := New(st, countingVariants(&counts)).Run(context.Background(), []string{"in/a.jpg", "in/b.png"})

	if summary.Written != 6 || summary.Skipped != 0 || summary.Failed != 0 {
		t.Fatalf("summary = %+v, want 6 written", summary)
	}

	want := []string{
		"in/a-64-c.jpg", "in/a-64-s.jpg", "in/a-64.jpg",
		"in/b-64-c.png", "in/b-64-s.png", "in/b-64.png",
	}
	got := st.Writes()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("writes = %v, want %v", got, want)
	}

	// The square output of a PNG keeps the .png name but holds JPEG bytes.
	data, err := st.Read(context.Background(), "in/b-64-s.png")
	if err != nil {
		t.Fatal(err)
	}
	if _, format, err := engine.Decode(data); err != nil || format != engine.JPEG {
		t.Errorf("b-64-s.png format = %s (%v), want jpeg", format, err)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	st := store.NewMemory()
	st.Put("a.jpg", photo(t, 120, 80, engine.JPEG))

	var counts sync.Map
	o := New(st, countingVariants(&counts))

	first := o.Run(context.Background(), []string{"a.jpg"})
	if first.Written != 3 {
		t.Fatalf("first run = %+v, want 3 written", first)
	}
	before := runs(&counts)

	second := o.Run(context.Background(), []string{"a.jpg"})
	if second.Skipped != 3 || second.Written != 0 || second.Failed != 0 {
		t.Errorf("second run = %+v, want 3 skipped", second)
	}
	if after := runs(&counts); after != before {
		t.Errorf("transforms ran %d more times on rerun, want 0", after-before)
	}
	if len(st.Writes()) != 3 {
		t.Errorf("writes = %v, want 3 in total", st.Writes())
	}
	if len(second.Outputs) != 3 {
		t.Errorf("second run outputs = %v, want all 3 listed", second.Outputs)
	}
}

func TestRunOnlyProducesMissingOutputs(t *testing.T) {
	st := store.NewMemory()
	st.Put("a.jpg", photo(t, 120, 80, engine.JPEG))
	st.Put("a-64.jpg", []byte("existing"))

	var counts sync.Map
	summary := New(st, countingVariants(&counts)).Run(context.Background(), []string{"a.jpg"})

	if summary.Skipped != 1 || summary.Written != 2 {
		t.Fatalf("summary = %+v, want 1 skipped and 2 written", summary)
	}
	if _, ran := counts.Load("64"); ran {
		t.Error("resize transform ran although its output existed")
	}
	data, _ := st.Read(context.Background(), "a-64.jpg")
	if string(data) != "existing" {
		t.Error("existing output was overwritten")
	}
}

func TestRunSkipsWithoutDecoding(t *testing.T) {
	st := store.NewMemory()
	st.Put("broken.jpg", []byte("not decodable"))
	for _, out := range []string{"broken-64.jpg", "broken-64-s.jpg", "broken-64-c.jpg"} {
		st.Put(out, []byte("done"))
	}

	var counts sync.Map
	summary := New(st, countingVariants(&counts)).Run(context.Background(), []string{"broken.jpg"})
	if summary.Skipped != 3 || summary.Failed != 0 {
		t.Errorf("summary = %+v, want 3 skipped and no failures", summary)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	st := store.NewMemory()
	st.Put("bad.jpg", []byte("garbage"))
	st.Put("good.jpg", photo(t, 120, 80, engine.JPEG))

	var counts sync.Map
	summary := New(st, countingVariants(&counts)).Run(context.Background(), []string{"bad.jpg", "good.jpg", "missing.jpg"})

	if summary.Written != 3 {
		t.Errorf("written = %d, want 3 for good.jpg", summary.Written)
	}
	if summary.Failed != 6 {
		t.Fatalf("failed = %d, want 3 for bad.jpg and 3 for missing.jpg", summary.Failed)
	}
	if summary.OK() {
		t.Error("OK() = true with failures")
	}

	for _, te := range summary.Errors {
		switch te.Source {
		case "bad.jpg":
			if !errors.Is(te, engine.ErrUnsupportedFormat) {
				t.Errorf("bad.jpg error = %v, want ErrUnsupportedFormat", te)
			}
		case "missing.jpg":
			if !errors.Is(te, store.ErrNotFound) {
				t.Errorf("missing.jpg error = %v, want ErrNotFound", te)
			}
		default:
			t.Errorf("unexpected failure for %s: %v", te.Source, te)
		}
		if !strings.Contains(te.Error(), te.Output) {
			t.Errorf("error %q does not name output %s", te.Error(), te.Output)
		}
	}
}

func TestRunFailingVariantLeavesSiblings(t *testing.T) {
	st := store.NewMemory()
	st.Put("a.jpg", photo(t, 120, 80, engine.JPEG))

	var counts sync.Map
	variants := countingVariants(&counts)
	boom := errors.New("boom")
	variants[1].Transform = func(context.Context, *derive.Source) ([]byte, error) { return nil, boom }

	summary := New(st, variants).Run(context.Background(), []string{"a.jpg"})
	if summary.Written != 2 || summary.Failed != 1 {
		t.Fatalf("summary = %+v, want 2 written and 1 failed", summary)
	}
	if !errors.Is(summary.Errors[0], boom) || summary.Errors[0].Variant != "64-s" {
		t.Errorf("failure = %+v, want boom on 64-s", summary.Errors[0])
	}
}

// trackingLimiter records the highest number of simultaneous holders.
type trackingLimiter struct {
	Limiter
	current atomic.Int32
	peak    atomic.Int32
}

func (l *trackingLimiter) Acquire(ctx context.Context) error {
	if err := l.Limiter.Acquire(ctx); err != nil {
		return err
	}
	n := l.current.Add(1)
	for {
		p := l.peak.Load()
		if n <= p || l.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return nil
}

func (l *trackingLimiter) Release() {
	l.current.Add(-1)
	l.Limiter.Release()
}

func TestLimiterBoundsConcurrency(t *testing.T) {
	st := store.NewMemory()
	var paths []string
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		path := name + ".jpg"
		st.Put(path, photo(t, 100, 70, engine.JPEG))
		paths = append(paths, path)
	}

	limiter := &trackingLimiter{Limiter: NewLimiter(2)}
	var counts sync.Map
	summary := New(st, countingVariants(&counts), WithLimiter(limiter)).Run(context.Background(), paths)

	if summary.Written != 15 {
		t.Fatalf("written = %d, want 15", summary.Written)
	}
	if peak := limiter.peak.Load(); peak > 2 || peak < 1 {
		t.Errorf("peak concurrency = %d, want between 1 and 2", peak)
	}
}

func TestRunCancelled(t *testing.T) {
	st := store.NewMemory()
	st.Put("a.jpg", photo(t, 120, 80, engine.JPEG))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var counts sync.Map
	summary := New(st, countingVariants(&counts), WithLimiter(NewLimiter(1))).Run(ctx, []string{"a.jpg"})
	if summary.Failed != 3 || len(st.Writes()) != 0 {
		t.Errorf("summary = %+v, writes = %v, want 3 failed and nothing written", summary, st.Writes())
	}
	for _, te := range summary.Errors {
		if !errors.Is(te, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", te)
		}
	}
}

func TestReporterSeesEveryTask(t *testing.T) {
	st := store.NewMemory()
	st.Put("a.jpg", photo(t, 120, 80, engine.JPEG))
	st.Put("a-64-s.jpg", []byte("present"))

	var buf bytes.Buffer
	var counts sync.Map
	New(st, countingVariants(&counts), WithReporter(ConsoleReporter{Out: &buf})).Run(context.Background(), []string{"a.jpg"})

	out := buf.String()
	if strings.Count(out, "written") != 2 || strings.Count(out, "skipped") != 1 {
		t.Errorf("console output = %q, want 2 written and 1 skipped lines", out)
	}
	if !strings.Contains(out, "skipped  a-64-s.jpg") {
		t.Errorf("console output = %q, want skipped line for a-64-s.jpg", out)
	}
}

func TestNewLimiterUnbounded(t *testing.T) {
	l := NewLimiter(0)
	for i := 0; i < 100; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
	}
}

func TestSummaryMerge(t *testing.T) {
	a := Summary{Written: 1, Outputs: []string{"x"}}
	b := Summary{Skipped: 2, Failed: 1, Outputs: []string{"y", "z"}, Errors: []*TaskError{{Source: "s"}}}
	a.Merge(b)
	if a.Written != 1 || a.Skipped != 2 || a.Failed != 1 || len(a.Outputs) != 3 || len(a.Errors) != 1 {
		t.Errorf("merged = %+v", a)
	}
}

func TestRunThinBannerDoesNotAffectSiblings(t *testing.T) {
	st := store.NewMemory()
	st.Put("good.jpg", photo(t, 300, 200, engine.JPEG))
	st.Put("banner.png", photo(t, 4000, 10, engine.PNG))

	opts := derive.DefaultOptions()
	opts.BlurSigma = 2
	summary := New(st, derive.Variants(opts, centerCropper{}), WithLimiter(NewLimiter(2))).
		Run(context.Background(), []string{"good.jpg", "banner.png"})

	if summary.Written != 6 || summary.Failed != 0 {
		t.Fatalf("summary = %+v, want 6 written and no failures", summary)
	}

	data, err := st.Read(context.Background(), "banner-2048-s.png")
	if err != nil {
		t.Fatalf("square output of banner missing: %v", err)
	}
	img, _, err := engine.Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if got := engine.SizeOf(img); got.Width != 2048 || got.Height != 2048 {
		t.Errorf("banner square = %v, want 2048x2048", got)
	}

	for _, out := range []string{"good-2048.jpg", "good-2048-s.jpg", "good-2048-c.jpg"} {
		if ok, _ := st.Exists(context.Background(), out); !ok {
			t.Errorf("%s was not written", out)
		}
	}
}
