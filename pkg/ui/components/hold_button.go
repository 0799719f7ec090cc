package components

import (
	"image/color"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

// DefaultHoldDuration is how long a HoldButton must be held to confirm.
const DefaultHoldDuration = 1500 * time.Millisecond

// HoldButton confirms an action only after being held down for
// HoldDuration. Releasing early cancels. Used for ringing a bell by hand.
type HoldButton struct {
	widget.BaseWidget
	Text         string
	HoldDuration time.Duration
	OnConfirm    func()

	holding  bool
	hovered  bool
	progress float32
	anim     *fyne.Animation
}

func NewHoldButton(text string, onConfirm func()) *HoldButton {
	b := &HoldButton{
		Text:         text,
		HoldDuration: DefaultHoldDuration,
		OnConfirm:    onConfirm,
	}
	b.ExtendBaseWidget(b)
	return b
}

func (b *HoldButton) CreateRenderer() fyne.WidgetRenderer {
	text := canvas.NewText(b.Text, theme.Color(theme.ColorNameForeground))
	text.Alignment = fyne.TextAlignCenter

	return &holdButtonRenderer{
		button:   b,
		text:     text,
		bg:       canvas.NewRectangle(theme.Color(theme.ColorNameButton)),
		progress: canvas.NewRectangle(theme.Color(theme.ColorNamePrimary)),
	}
}

// Progress is the fraction of the hold completed so far.
func (b *HoldButton) Progress() float32 {
	return b.progress
}

func (b *HoldButton) Tapped(*fyne.PointEvent) {}

func (b *HoldButton) TappedSecondary(*fyne.PointEvent) {}

func (b *HoldButton) MouseIn(*desktop.MouseEvent) {
	b.hovered = true
	b.Refresh()
}

func (b *HoldButton) MouseMoved(*desktop.MouseEvent) {}

func (b *HoldButton) MouseOut() {
	b.hovered = false
	b.release()
}

func (b *HoldButton) MouseDown(*desktop.MouseEvent) {
	b.press()
}

func (b *HoldButton) MouseUp(*desktop.MouseEvent) {
	b.release()
}

func (b *HoldButton) press() {
	if !b.begin() {
		return
	}
	b.anim = fyne.NewAnimation(b.HoldDuration, b.advance)
	b.anim.Curve = fyne.AnimationLinear
	b.anim.Start()
}

func (b *HoldButton) begin() bool {
	if b.holding || b.Disabled() {
		return false
	}
	b.holding = true
	return true
}

func (b *HoldButton) release() {
	if b.anim != nil {
		b.anim.Stop()
		b.anim = nil
	}
	b.holding = false
	b.progress = 0
	b.Refresh()
}

// advance is the animation tick. Reaching 1 while still held confirms.
func (b *HoldButton) advance(done float32) {
	if !b.holding {
		return
	}
	b.progress = done
	b.Refresh()
	if done < 1 {
		return
	}
	b.holding = false
	b.anim = nil
	b.progress = 0
	b.Refresh()
	if b.OnConfirm != nil {
		b.OnConfirm()
	}
}

// Disabled is true while there is nothing to ring.
func (b *HoldButton) Disabled() bool {
	return b.OnConfirm == nil
}

type holdButtonRenderer struct {
	button   *HoldButton
	text     *canvas.Text
	bg       *canvas.Rectangle
	progress *canvas.Rectangle
}

func (r *holdButtonRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)
	r.text.Resize(size)
	r.progress.Move(fyne.NewPos(0, 0))
	r.progress.Resize(fyne.NewSize(size.Width*r.button.progress, size.Height))
}

func (r *holdButtonRenderer) MinSize() fyne.Size {
	textSize := r.text.MinSize()
	return fyne.NewSize(
		fyne.Max(textSize.Width+theme.Padding()*4, 160),
		fyne.Max(textSize.Height+theme.Padding()*2, 40),
	)
}

func (r *holdButtonRenderer) Refresh() {
	r.text.Text = r.button.Text
	r.text.Color = theme.Color(theme.ColorNameForeground)
	switch {
	case r.button.Disabled():
		r.bg.FillColor = theme.Color(theme.ColorNameDisabledButton)
		r.text.Color = theme.Color(theme.ColorNameDisabled)
	case r.button.hovered:
		r.bg.FillColor = theme.Color(theme.ColorNameHover)
	default:
		r.bg.FillColor = theme.Color(theme.ColorNameButton)
	}
	r.Layout(r.bg.Size())

	r.bg.Refresh()
	r.progress.Refresh()
	r.text.Refresh()
}

func (r *holdButtonRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.bg, r.progress, r.text}
}

func (r *holdButtonRenderer) Destroy() {}

func (r *holdButtonRenderer) BackgroundColor() color.Color {
	return theme.Color(theme.ColorNameButton)
}
