// Package report renders calibration results for the terminal.
package report

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/MrWong99/vadcal/internal/calibrate"
	"github.com/MrWong99/vadcal/internal/history"
	"github.com/MrWong99/vadcal/pkg/settings"
	"github.com/MrWong99/vadcal/pkg/types"
)

// Color palette
var (
	accentColor = lipgloss.Color("#2E86C1")
	warnColor   = lipgloss.Color("#D68910")
	mutedColor  = lipgloss.Color("#888888")
	textColor   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			MarginBottom(1)

	KeyStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(26)

	ValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor)

	WarnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(warnColor)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accentColor).
			Padding(0, 1)
)

// histogramBuckets is the resolution of the probability distribution line.
const histogramBuckets = 20

var levels = []rune(" ▁▂▃▄▅▆▇█")

type builder struct {
	sb strings.Builder
}

func (b *builder) title(s string) {
	b.sb.WriteString(TitleStyle.Render(s))
	b.sb.WriteString("\n")
}

func (b *builder) kv(key, format string, args ...any) {
	b.sb.WriteString(KeyStyle.Render(key))
	b.sb.WriteString(ValueStyle.Render(fmt.Sprintf(format, args...)))
	b.sb.WriteString("\n")
}

func (b *builder) warn(s string) {
	b.sb.WriteString(WarnStyle.Render(s))
	b.sb.WriteString("\n")
}

func (b *builder) String() string {
	return boxStyle.Render(strings.TrimRight(b.sb.String(), "\n"))
}

// Phase1 renders a speech-profile result.
func Phase1(r calibrate.Phase1Result) string {
	var b builder
	b.title("Speech profile")
	b.kv("Samples", "%d", len(r.Samples))
	if r.NoSpeechDetected {
		b.warn("No speech detected. Speak after the pause and try again.")
	}
	b.kv("Positive threshold", "%.2f", r.PositiveThreshold)
	b.kv("Negative threshold", "%.2f", r.NegativeThreshold)
	b.kv("Ambient ceiling", "%.3f", r.AmbientCeiling)
	if !r.NoSpeechDetected {
		b.kv("Speech floor", "%.3f", r.SpeechFloor)
		b.kv("Split point", "%.3f", r.SplitPoint)
		b.kv("Ambient / speech mean", "%.3f / %.3f", r.AmbientMean, r.SpeechMean)
	}
	if len(r.Samples) > 0 {
		b.kv("Distribution", "%s", Histogram(r.Samples, histogramBuckets))
	}
	return b.String()
}

// Phase2 renders an echo-leakage result.
func Phase2(r calibrate.Phase2Result) string {
	var b builder
	b.title("Echo leakage")
	b.kv("Samples", "%d", len(r.Samples))
	b.kv("Threshold", "%.2f", r.Threshold)
	b.kv("Spikes", "%d", len(r.Spikes))
	for i, s := range r.Spikes {
		b.kv(fmt.Sprintf("  #%d", i+1), "%.0f–%.0f ms (%.0f ms, peak %.2f)",
			s.StartTime, s.EndTime, s.Duration, s.PeakProbability)
	}
	b.kv("Longest spike", "%.0f ms", r.MaxSpikeDuration)
	b.kv("Min speech start", "%d ms", r.RecommendedMinSpeechStartMs)
	if r.RecommendDisableInterruption {
		b.warn("Leakage is too long to debounce. Interruption will be disabled.")
	}
	return b.String()
}

// Settings renders the persisted VAD settings.
func Settings(v settings.Values) string {
	var b builder
	b.title("Applied settings")
	b.kv(string(settings.KeyPositiveThreshold), "%.2f", v.PositiveThreshold)
	b.kv(string(settings.KeyNegativeThreshold), "%.2f", v.NegativeThreshold)
	b.kv(string(settings.KeyMinSpeechStartMs), "%d", v.MinSpeechStartMs)
	b.kv(string(settings.KeyInterruptionEnabled), "%t", v.InterruptionEnabled)
	return b.String()
}

// History renders recorded runs as a table, oldest first.
func History(recs []history.Record) string {
	if len(recs) == 0 {
		return KeyStyle.UnsetWidth().Render("No calibration runs recorded.")
	}
	rows := make([][]string, len(recs))
	for i, r := range recs {
		interruption := "on"
		if r.DisableInterruption {
			interruption = "off"
		}
		rows[i] = []string{
			r.Timestamp.Local().Format("2006-01-02 15:04"),
			r.Outcome,
			fmt.Sprintf("%.2f", r.PositiveThreshold),
			fmt.Sprintf("%.2f", r.NegativeThreshold),
			fmt.Sprintf("%d", r.MinSpeechStartMs),
			interruption,
		}
	}
	return newTable("When", "Outcome", "Positive", "Negative", "Min start ms", "Interruption").
		Rows(rows...).
		Render()
}

// Voices renders the voices offered by a TTS backend. The voice named in
// selected is marked.
func Voices(voices []types.VoiceProfile, selected string) string {
	if len(voices) == 0 {
		return KeyStyle.UnsetWidth().Render("The provider offers no voices.")
	}
	rows := make([][]string, len(voices))
	for i, v := range voices {
		mark := ""
		if v.ID == selected {
			mark = "*"
		}
		labels := make([]string, 0, len(v.Metadata))
		for _, k := range slices.Sorted(maps.Keys(v.Metadata)) {
			labels = append(labels, k+"="+v.Metadata[k])
		}
		rows[i] = []string{mark, v.ID, v.Name, v.Provider, strings.Join(labels, " ")}
	}
	return newTable("", "ID", "Name", "Provider", "Labels").
		Rows(rows...).
		Render()
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(accentColor)).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return TitleStyle.UnsetMarginBottom().Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

// Histogram draws the probability distribution of samples as a line of block
// characters, one per bucket over [0, 1].
func Histogram(samples []calibrate.Sample, buckets int) string {
	if buckets <= 0 || len(samples) == 0 {
		return ""
	}
	counts := make([]int, buckets)
	peak := 0
	for _, s := range samples {
		i := min(max(int(s.Probability*float64(buckets)), 0), buckets-1)
		counts[i]++
		peak = max(peak, counts[i])
	}
	out := make([]rune, buckets)
	top := len(levels) - 1
	for i, c := range counts {
		lvl := (c*top + peak - 1) / peak
		out[i] = levels[lvl]
	}
	return string(out)
}
