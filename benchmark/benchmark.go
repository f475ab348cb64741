package main

import (
	"errors"
	"flag"
	"fmt"
	"image/color"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"pulsemeter"
	"pulsemeter/BeatDetector"
	"strings"
	"text/tabwriter"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ============================================================================
// 1. 测试场景 (Scenarios)
// ============================================================================

type TestCase struct {
	Name     string
	Synth    pulsemeter.SyntheticConfig
	Duration time.Duration
	Expected float64 // 期望的稳定 BPM
}

func scenario(name string, bpm float64, mutate func(c *pulsemeter.SyntheticConfig)) TestCase {
	c := pulsemeter.DefaultSyntheticConfig()
	c.BPM = bpm
	if mutate != nil {
		mutate(&c)
	}
	expected := bpm
	if len(c.IBIs) > 0 {
		sum := 0
		for _, ibi := range c.IBIs {
			sum += ibi
		}
		expected = 60000 * float64(len(c.IBIs)) / float64(sum)
	}
	return TestCase{Name: name, Synth: c, Duration: 60 * time.Second, Expected: expected}
}

func defaultCases() []TestCase {
	return []TestCase{
		scenario("Rest", 60, nil),
		scenario("Normal", 75, nil),
		scenario("Exercise", 150, nil),
		scenario("Noisy", 75, func(c *pulsemeter.SyntheticConfig) { c.Noise = 0.03 }),
		scenario("Very noisy", 75, func(c *pulsemeter.SyntheticConfig) { c.Noise = 0.08 }),
		scenario("Weak signal", 75, func(c *pulsemeter.SyntheticConfig) { c.Amplitude = 0.3; c.Baseline = 2.4 }),
		scenario("Jitter 10%", 80, func(c *pulsemeter.SyntheticConfig) { c.Jitter = 0.1 }),
		scenario("Bigeminy", 0, func(c *pulsemeter.SyntheticConfig) { c.IBIs = []int{600, 1000} }),
		scenario("Dropout", 75, func(c *pulsemeter.SyntheticConfig) { c.DropoutAtMs = 20000; c.DropoutForMs = 5000 }),
	}
}

// ============================================================================
// 2. 评分 (Scoring)
// ============================================================================

// 频谱交叉验证用的 FFT 点数 (约 8 秒)
const spectrumSize = 4096

type Result struct {
	FinalBPM    int
	Error       float64 // |最终 BPM - 期望|
	LockMs      int     // 首次进入 ±3 BPM 的时间，-1 为未锁定
	Beats       int
	Dropouts    int
	Summary     pulsemeter.SessionSummary
	SpectralBPM float64     // 最后 spectrumSize 个点的主频估计
	Timeline    plotter.XYs // (秒, BPM)
	Waveform    []float64
	Elapsed     time.Duration
	TickCostNs  float64
}

// Run 用 Monitor 跑一个场景 (虚拟时间)
func Run(tc TestCase) Result {
	gen := pulsemeter.NewSyntheticPPG(tc.Synth)
	var wave []float64
	src := &tap{Sampler: gen, out: &wave}

	mon := pulsemeter.NewMonitor(src, pulsemeter.DefaultChannel, 16)
	var stats pulsemeter.SessionStats
	res := Result{LockMs: -1}

	ticks := int(tc.Duration / (BeatDetector.TickPeriodMs * time.Millisecond))
	start := time.Now()
	for i := 0; i < ticks; i++ {
		r, err := mon.Tick()
		if err != nil {
			break
		}
		for len(mon.Events()) > 0 {
			e := <-mon.Events()
			stats.Observe(e)
			if e.Kind == pulsemeter.EventBeat {
				t := float64(r.Now) / 1000
				res.Timeline = append(res.Timeline, plotter.XY{X: t, Y: float64(e.BPM)})
				if res.LockMs < 0 && math.Abs(float64(e.BPM)-tc.Expected) <= 3 {
					res.LockMs = int(r.Now)
				}
			}
		}
	}
	res.Elapsed = time.Since(start)
	res.TickCostNs = float64(res.Elapsed.Nanoseconds()) / float64(ticks)

	res.Summary = stats.Summary()
	res.Beats = res.Summary.Beats
	res.Dropouts = res.Summary.Dropouts
	res.FinalBPM = mon.BPM()
	res.Error = math.Abs(float64(res.FinalBPM) - tc.Expected)
	res.Waveform = wave
	res.SpectralBPM = pulsemeter.NewSpectrumAnalyzer(spectrumSize).EstimateBPM(wave)
	return res
}

// tap 记录送进检测器的波形，用于导出 WAV
type tap struct {
	pulsemeter.Sampler
	out *[]float64
}

func (t *tap) ReadSample(channel uint8) (float64, error) {
	v, err := t.Sampler.ReadSample(channel)
	if err == nil {
		*t.out = append(*t.out, v)
	}
	return v, err
}

// ============================================================================
// 3. 输出 (Plot & WAV)
// ============================================================================

func fileName(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

// savePlot BPM 随时间变化，期望值画成虚线
func savePlot(dir string, tc TestCase, res Result) error {
	if len(res.Timeline) == 0 {
		return errors.New("no beats to plot")
	}
	p := plot.New()
	p.Title.Text = tc.Name
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "BPM"

	line, err := plotter.NewLine(res.Timeline)
	if err != nil {
		return err
	}
	line.Width = vg.Points(1)
	line.Color = color.RGBA{R: 200, A: 255}

	end := res.Timeline[len(res.Timeline)-1].X
	ref, err := plotter.NewLine(plotter.XYs{{X: 0, Y: tc.Expected}, {X: end, Y: tc.Expected}})
	if err != nil {
		return err
	}
	ref.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	ref.Color = color.Gray{Y: 128}

	p.Add(line, ref)
	p.Legend.Add("detected", line)
	p.Legend.Add("expected", ref)

	return p.Save(10*vg.Inch, 4*vg.Inch, filepath.Join(dir, fileName(tc.Name)+".png"))
}

func saveWav(dir string, tc TestCase, res Result) error {
	w, err := pulsemeter.NewWavWriter(filepath.Join(dir, fileName(tc.Name)+".wav"), 1000/BeatDetector.TickPeriodMs)
	if err != nil {
		return err
	}
	if err := w.WriteVoltages(res.Waveform); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// ============================================================================
// 4. 基准测试套件 (Benchmark Harness)
// ============================================================================

func RunBenchmark(out io.Writer, cases []TestCase, plotDir, wavDir string) int {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCENARIO\tEXPECT\tBPM\tFFT BPM\tERR\tLOCK(ms)\tBEATS\tDROPOUTS\tSDNN(ms)\tns/TICK\tSTATUS")
	fmt.Fprintln(w, "--------\t------\t---\t-------\t---\t--------\t-----\t--------\t--------\t-------\t------")

	failures := 0
	for _, tc := range cases {
		res := Run(tc)

		status := "PASS"
		if res.Error > 3 || res.LockMs < 0 {
			status = "FAIL"
			failures++
		}

		fmt.Fprintf(w, "%s\t%.0f\t%d\t%.1f\t%.1f\t%d\t%d\t%d\t%.1f\t%.0f\t%s\n",
			tc.Name, tc.Expected, res.FinalBPM, res.SpectralBPM, res.Error, res.LockMs,
			res.Beats, res.Dropouts, res.Summary.SDNN, res.TickCostNs, status)

		if plotDir != "" {
			if err := savePlot(plotDir, tc, res); err != nil {
				log.Printf("plot %s: %v", tc.Name, err)
			}
		}
		if wavDir != "" {
			if err := saveWav(wavDir, tc, res); err != nil {
				log.Printf("wav %s: %v", tc.Name, err)
			}
		}
	}
	w.Flush()
	return failures
}

func main() {
	plotDir := flag.String("plot", "", "Write a BPM chart per scenario (PNG) into this directory")
	wavDir := flag.String("wav", "", "Export each scenario's waveform as 500Hz WAV into this directory")
	duration := flag.Duration("duration", 60*time.Second, "Signal length per scenario")
	flag.Parse()

	for _, dir := range []string{*plotDir, *wavDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	cases := defaultCases()
	for i := range cases {
		cases[i].Duration = *duration
	}

	if failures := RunBenchmark(os.Stdout, cases, *plotDir, *wavDir); failures > 0 {
		fmt.Printf("\n%d scenario(s) failed\n", failures)
		os.Exit(1)
	}
}
