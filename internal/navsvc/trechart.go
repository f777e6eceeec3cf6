package navsvc

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/tmsnav/internal/httputil"
	"github.com/banshee-data/tmsnav/internal/protocol"
	"github.com/banshee-data/tmsnav/internal/telemetry"
)

// DefaultHistorySize is how many TRE estimates the service keeps for the
// chart route.
const DefaultHistorySize = 2000

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// TREHistory keeps the most recent TRE estimates, oldest first.
type TREHistory struct {
	mu      sync.Mutex
	limit   int
	samples []telemetry.Sample
}

// NewTREHistory returns a history holding at most limit samples.
func NewTREHistory(limit int) *TREHistory {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	return &TREHistory{limit: limit}
}

// Add records s, dropping the oldest sample when full.
func (h *TREHistory) Add(s telemetry.Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.samples) == h.limit {
		copy(h.samples, h.samples[1:])
		h.samples = h.samples[:h.limit-1]
	}
	h.samples = append(h.samples, s)
}

// Samples returns a copy of the recorded samples.
func (h *TREHistory) Samples() []telemetry.Sample {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]telemetry.Sample(nil), h.samples...)
}

// RenderTREChart writes an HTML page with one distance-over-time line chart
// per telemetry kind present in samples.
func RenderTREChart(w io.Writer, title string, samples []telemetry.Sample) error {
	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.PageTitle = title

	for _, kind := range []protocol.Kind{protocol.KindPoint, protocol.KindPose} {
		var x []string
		var y []opts.LineData
		for _, s := range samples {
			if s.Kind != kind {
				continue
			}
			x = append(x, s.Time.Format("15:04:05.000"))
			y = append(y, opts.LineData{Value: s.DistanceMm})
		}
		if len(y) == 0 {
			continue
		}
		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px", AssetsHost: echartsAssetsHost}),
			charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("TRE (%s)", kind), Subtitle: fmt.Sprintf("%d estimates", len(y))}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithXAxisOpts(opts.XAxis{Name: "time"}),
			charts.WithYAxisOpts(opts.YAxis{Name: "distance (mm)"}),
		)
		line.SetXAxis(x).AddSeries(kind.String(), y)
		page.AddCharts(line)
	}
	return page.Render(w)
}

func (s *Service) handleTREChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	samples := s.history.Samples()
	if len(samples) == 0 {
		httputil.WriteJSONError(w, http.StatusNotFound, "no TRE estimates recorded")
		return
	}
	var buf bytes.Buffer
	if err := RenderTREChart(&buf, "tmsnav TRE", samples); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
