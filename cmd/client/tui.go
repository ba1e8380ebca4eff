package main

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/yitech/pricechart/model/selection"
	"github.com/yitech/pricechart/rpc"
)

// ── styles ────────────────────────────────────────────────────────────────────

var (
	lineStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4a9eff"))
	axisStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#aaaaaa"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))
	liveStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#26a641"))
	staleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#d7a600"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#e05c5c"))
)

const selectTimeout = 10 * time.Second

// ── messages ──────────────────────────────────────────────────────────────────

type frameMsg struct{ f rpc.Frame }

type selectedMsg struct {
	f   rpc.Frame
	err error
}

// ── model ─────────────────────────────────────────────────────────────────────

type selectFunc func(ctx context.Context, sel selection.Selection) (rpc.Frame, error)

type model struct {
	symbols  []string
	selectFn selectFunc
	ch       <-chan rpc.Frame

	sel   selection.Selection
	frame rpc.Frame
	have  bool
	err   error

	width  int
	height int
}

func newModel(symbols []string, selectFn selectFunc, ch <-chan rpc.Frame) model {
	if len(symbols) == 0 {
		symbols = []string{selection.DefaultSymbol}
	}
	return model{
		symbols:  symbols,
		selectFn: selectFn,
		ch:       ch,
		sel:      selection.Selection{Symbol: symbols[0], Interval: selection.DefaultInterval},
	}
}

// ── Init / Update / View ──────────────────────────────────────────────────────

func (m model) Init() tea.Cmd {
	return waitForFrame(m.ch)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "s":
			return m.switchTo(cycle(m.symbols, m.sel.Symbol, 1), m.sel.Interval)
		case "S":
			return m.switchTo(cycle(m.symbols, m.sel.Symbol, -1), m.sel.Interval)
		case "i":
			return m.switchTo(m.sel.Symbol, cycle(selection.Intervals, m.sel.Interval, 1))
		case "I":
			return m.switchTo(m.sel.Symbol, cycle(selection.Intervals, m.sel.Interval, -1))
		}

	case frameMsg:
		m.apply(msg.f)
		return m, waitForFrame(m.ch)

	case selectedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.apply(msg.f)
	}

	return m, nil
}

func (m model) View() string {
	if m.width == 0 {
		return "connecting…"
	}
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteByte('\n')
	b.WriteString(m.renderChart())
	b.WriteByte('\n')
	b.WriteString(footerStyle.Render("[s/S] symbol  [i/I] interval  [q] quit"))
	return b.String()
}

// ── helpers ───────────────────────────────────────────────────────────────────

// waitForFrame blocks on the channel and returns a Cmd that fires frameMsg.
func waitForFrame(ch <-chan rpc.Frame) tea.Cmd {
	return func() tea.Msg {
		return frameMsg{<-ch}
	}
}

func (m model) switchTo(symbol string, interval selection.Interval) (tea.Model, tea.Cmd) {
	sel := selection.Selection{Symbol: symbol, Interval: interval}
	if sel == m.sel || m.selectFn == nil {
		return m, nil
	}
	m.sel = sel
	m.err = nil
	fn := m.selectFn
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), selectTimeout)
		defer cancel()
		f, err := fn(ctx, sel)
		return selectedMsg{f: f, err: err}
	}
}

func (m *model) apply(f rpc.Frame) {
	m.frame = f
	m.sel = f.Selection
	m.have = true
	m.err = nil
}

// cycle returns the element dir steps away from cur, wrapping around. A cur
// not in list starts from the first element.
func cycle[T comparable](list []T, cur T, dir int) T {
	i := slices.Index(list, cur)
	if i < 0 {
		return list[0]
	}
	n := len(list)
	return list[((i+dir)%n+n)%n]
}

// ── header ────────────────────────────────────────────────────────────────────

func (m model) renderHeader() string {
	head := headerStyle.Render(fmt.Sprintf("%s  %s", m.sel.Symbol, m.sel.Interval))
	if !m.have {
		return head + headerStyle.Render("  waiting for data…")
	}

	state := staleStyle
	if m.frame.State == "connected" {
		state = liveStyle
	}
	head += "  " + state.Render("["+m.frame.State+"]")

	if last, ok := m.frame.Series.Last(); ok {
		head += headerStyle.Render(fmt.Sprintf("  last: %s", last.Price.String()))
	}
	head += headerStyle.Render(fmt.Sprintf("  samples: %d", m.frame.Series.Len()))
	if m.err != nil {
		head += "  " + errStyle.Render(m.err.Error())
	}
	return head
}

// ── chart ─────────────────────────────────────────────────────────────────────

const yAxisGap = 2 // " │"

func (m model) renderChart() string {
	// Reserve: 1 header + chart rows + 1 x-axis line + 1 time-label line + 1 footer
	chartH := max(m.height-4, 3)

	times, prices := m.visible()
	hi, lo := priceRange(prices)
	prec := precision(hi - lo)
	labelW := max(len(fmt.Sprintf("%.*f", prec, hi)), len(fmt.Sprintf("%.*f", prec, lo)))
	yAxisWidth := labelW + yAxisGap

	if n := m.width - yAxisWidth; len(prices) > n && n > 0 {
		times, prices = times[len(times)-n:], prices[len(prices)-n:]
	}
	grid := plot(prices, chartH, hi, lo)

	var b strings.Builder
	for row := range chartH {
		label := fmt.Sprintf("%*.*f │", labelW, prec, rowToPrice(row, chartH, hi, lo))
		b.WriteString(axisStyle.Render(label))
		b.WriteString(lineStyle.Render(string(grid[row])))
		b.WriteByte('\n')
	}

	b.WriteString(axisStyle.Render(strings.Repeat("─", yAxisWidth+len(prices))))
	b.WriteByte('\n')

	b.WriteString(strings.Repeat(" ", yAxisWidth))
	b.WriteString(axisStyle.Render(timeLabels(times, m.frame.Granularity)))
	b.WriteByte('\n')

	return b.String()
}

func (m model) visible() ([]time.Time, []float64) {
	s := m.frame.Series
	n := min(len(s.Labels), len(s.Prices))
	times := make([]time.Time, n)
	prices := make([]float64, n)
	for i := range n {
		times[i] = s.Labels[i]
		prices[i] = s.Prices[i].InexactFloat64()
	}
	return times, prices
}

// plot draws prices as a line, one column per sample. Consecutive samples
// are joined with a vertical run so steep moves stay connected.
func plot(prices []float64, chartH int, hi, lo float64) [][]rune {
	grid := make([][]rune, chartH)
	for r := range grid {
		grid[r] = []rune(strings.Repeat(" ", len(prices)))
	}

	prev := -1
	for x, p := range prices {
		row := priceToRow(p, chartH, hi, lo)
		if prev >= 0 && prev != row {
			from, to := min(prev, row), max(prev, row)
			for r := from + 1; r < to; r++ {
				grid[r][x] = '│'
			}
		}
		grid[row][x] = '•'
		prev = row
	}
	return grid
}

// timeLabels places a clock label every few columns, never overlapping.
func timeLabels(times []time.Time, g selection.Granularity) string {
	const gap = 2
	layout := "15:04"
	if g.Unit == selection.UnitHour {
		layout = "01/02 15h"
	}
	width := len(layout)

	line := []rune(strings.Repeat(" ", len(times)))
	next := 0
	for i, t := range times {
		if i < next || i+width > len(times) {
			continue
		}
		copy(line[i:], []rune(t.Format(layout)))
		next = i + width + gap
	}
	return string(line)
}

// priceToRow converts a price to a grid row (0 = top = high).
func priceToRow(price float64, chartH int, hi, lo float64) int {
	if hi == lo {
		return chartH / 2
	}
	r := int(math.Round((hi - price) / (hi - lo) * float64(chartH-1)))
	return min(max(r, 0), chartH-1)
}

// rowToPrice is the inverse of priceToRow.
func rowToPrice(row, chartH int, hi, lo float64) float64 {
	if chartH <= 1 {
		return hi
	}
	return hi - float64(row)/float64(chartH-1)*(hi-lo)
}

// priceRange returns the high and low of prices; a flat or empty series
// is widened so the axis has a span.
func priceRange(prices []float64) (hi, lo float64) {
	if len(prices) == 0 {
		return 1, 0
	}
	hi, lo = slices.Max(prices), slices.Min(prices)
	if hi == lo {
		pad := math.Abs(hi) * 0.01
		if pad == 0 {
			pad = 1
		}
		hi, lo = hi+pad, lo-pad
	}
	return hi, lo
}

// precision picks enough decimals to tell axis rows apart.
func precision(span float64) int {
	if span <= 0 {
		return 2
	}
	return min(max(int(math.Ceil(-math.Log10(span/10))), 2), 8)
}
