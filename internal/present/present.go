package present

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/MikeSquared-Agency/empath/internal/emotion"
	"github.com/MikeSquared-Agency/empath/internal/fusion"
	"github.com/MikeSquared-Agency/empath/internal/slots"
)

const (
	DefaultIcon = "❓"
	// NotCalculated is shown before any result exists.
	NotCalculated = "Not calculated"
)

// DefaultIcons covers the canonical labels and the text model's own labels.
func DefaultIcons() map[string]string {
	return map[string]string{
		"angry":    "😡",
		"disgust":  "🤢",
		"fear":     "😨",
		"happy":    "😄",
		"neutral":  "😐",
		"sad":      "😢",
		"surprise": "😲",
		"joy":      "😄",
		"sadness":  "😢",
		"anger":    "😡",
		"love":     "❤️",
	}
}

// Bar is one label's fill value, clamped to [0, 1].
type Bar struct {
	Label string  `json:"label"`
	Icon  string  `json:"icon"`
	Title string  `json:"title"`
	Value float64 `json:"value"`
}

// View is what a dashboard renders for a distribution or fused result.
type View struct {
	Icon       string  `json:"icon"`
	Label      string  `json:"label"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Bars       []Bar   `json:"bars"`
	Computed   bool    `json:"computed"`
}

// Adapter formats results. It holds no state beyond its icon table.
type Adapter struct {
	icons map[string]string
}

// NewAdapter merges overrides on top of DefaultIcons.
func NewAdapter(overrides map[string]string) *Adapter {
	icons := DefaultIcons()
	for label, icon := range overrides {
		icons[label] = icon
	}
	return &Adapter{icons: icons}
}

func (a *Adapter) Icon(label string) string {
	if icon, ok := a.icons[label]; ok {
		return icon
	}
	return DefaultIcon
}

// Title upper-cases the first letter of each word. A Caser is stateful, so
// each call gets its own.
func (a *Adapter) Title(label string) string {
	return cases.Title(language.English).String(label)
}

// FromResult renders a fused decision over the canonical space.
func (a *Adapter) FromResult(r *fusion.Result) View {
	if r == nil {
		return a.empty(nil)
	}
	mix := r.Mixture()
	return View{
		Icon:       a.Icon(r.Dominant()),
		Label:      a.Title(r.Dominant()),
		Text:       a.confidenceText(r.Dominant(), r.Confidence()),
		Confidence: clamp(r.Confidence()),
		Bars:       a.bars(mix.Labels(), mix.Probs()),
		Computed:   true,
	}
}

// FromDistribution renders a single modality's distribution. vocab supplies
// the bar labels for the empty state.
func (a *Adapter) FromDistribution(vocab emotion.Vocabulary, d *emotion.Distribution) View {
	if d == nil {
		return a.empty(vocab)
	}
	label, p := d.Argmax()
	return View{
		Icon:       a.Icon(label),
		Label:      a.Title(label),
		Text:       a.confidenceText(label, p),
		Confidence: clamp(p),
		Bars:       a.bars(d.Labels(), d.Probs()),
		Computed:   true,
	}
}

// FromSlot renders a modality slot, showing sentinel labels verbatim.
func (a *Adapter) FromSlot(vocab emotion.Vocabulary, s slots.Slot) View {
	if s.Distribution != nil {
		v := a.FromDistribution(vocab, s.Distribution)
		if s.Label != "" {
			v.Icon = a.Icon(s.Label)
			v.Label = a.Title(s.Label)
		}
		return v
	}
	v := a.empty(vocab)
	if s.Sentinel != slots.SentinelNone {
		v.Label = s.Sentinel.Label()
		v.Text = v.Label
	}
	return v
}

// Detail is the long-form aggregate summary.
func (a *Adapter) Detail(r *fusion.Result) string {
	if r == nil {
		return NotCalculated
	}
	contrib := r.Contribution()
	var b strings.Builder
	fmt.Fprintf(&b, "Combined Emotion: %s %s\n", a.Title(r.Dominant()), a.Icon(r.Dominant()))
	fmt.Fprintf(&b, "Overall Confidence: %s\n\n", percent(r.Confidence()))
	for i, m := range emotion.Modalities {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s Contribution: %.0f%%", a.Title(string(m)), contrib[m])
	}
	return b.String()
}

func (a *Adapter) empty(vocab emotion.Vocabulary) View {
	return View{
		Icon:  DefaultIcon,
		Label: NotCalculated,
		Text:  NotCalculated,
		Bars:  a.bars(vocab, make([]float64, len(vocab))),
	}
}

func (a *Adapter) confidenceText(label string, p float64) string {
	return fmt.Sprintf("%s (Confidence: %s)", a.Title(label), percent(p))
}

func (a *Adapter) bars(labels emotion.Vocabulary, probs []float64) []Bar {
	out := make([]Bar, len(labels))
	for i, label := range labels {
		out[i] = Bar{Label: label, Icon: a.Icon(label), Title: a.Title(label), Value: clamp(probs[i])}
	}
	return out
}

func percent(p float64) string {
	return fmt.Sprintf("%.1f%%", p*100)
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(v, 1)
}
