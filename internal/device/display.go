// internal/device/display.go
package device

import (
	"fmt"
	"sync"

	"sphero-behavior/internal/models"

	"github.com/gdamore/tcell/v2"
)

// Layout origin of the matrix; each LED is two cells wide.
const (
	matrixX = 2
	matrixY = 2
)

// Display draws a Simulator and the controller state on a tcell screen.
type Display struct {
	mu     sync.Mutex
	screen tcell.Screen
	device string
	status string
	last   SimState
}

// NewDisplay binds a display to an initialized screen.
func NewDisplay(screen tcell.Screen, device string) *Display {
	return &Display{screen: screen, device: device, status: "starting"}
}

// Attach redraws on every simulator change.
func (d *Display) Attach(sim *Simulator) {
	sim.OnChange(d.Render)
	d.Render(sim.State())
}

// OnTransition updates the status line.
func (d *Display) OnTransition(rec models.TransitionRecord) {
	d.mu.Lock()
	d.status = fmt.Sprintf("%s (%s, collisions %d)", rec.To, rec.Trigger, rec.CollisionCount)
	st := d.last
	d.mu.Unlock()
	d.Render(st)
}

// Render draws st.
func (d *Display) Render(st SimState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = st

	d.screen.Clear()
	title := tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	d.text(0, 0, title, fmt.Sprintf("%s simulator  [%s]", d.device, d.status))

	off := tcell.StyleDefault.Background(tcell.ColorBlack)
	for r := 0; r < models.MatrixSize; r++ {
		for c := 0; c < models.MatrixSize; c++ {
			style := off
			if px := st.Matrix[r][c]; px != nil {
				style = tcell.StyleDefault.Background(rgb(*px))
			}
			x := matrixX + c*2
			d.screen.SetContent(x, matrixY+r, ' ', nil, style)
			d.screen.SetContent(x+1, matrixY+r, ' ', nil, style)
		}
	}

	infoX := matrixX + models.MatrixSize*2 + 3
	d.led(infoX, matrixY, "front", st.Front)
	d.led(infoX, matrixY+1, "back ", st.Back)

	plain := tcell.StyleDefault
	motion := fmt.Sprintf("heading %3d°  speed %3d", st.Heading, st.Speed)
	if st.Spinning {
		motion += "  spinning"
	}
	d.text(infoX, matrixY+3, plain, motion)
	d.text(infoX, matrixY+4, plain, fmt.Sprintf("pitch %+.2f  roll %+.2f", st.Orientation.Pitch, st.Orientation.Roll))
	link := "offline"
	if st.Connected {
		link = "online"
	}
	d.text(infoX, matrixY+5, plain, "link "+link)

	help := tcell.StyleDefault.Foreground(tcell.ColorGray)
	d.text(0, matrixY+models.MatrixSize+1, help, "r patrol  s interact  q sleep  h heart  w wave  k shake  p lift  c collide  v voice  x/esc quit")
	d.screen.Show()
}

func (d *Display) led(x, y int, label string, c models.Color) {
	d.text(x, y, tcell.StyleDefault, label+" ")
	style := tcell.StyleDefault.Background(rgb(c))
	d.screen.SetContent(x+len(label)+1, y, ' ', nil, style)
	d.screen.SetContent(x+len(label)+2, y, ' ', nil, style)
}

func (d *Display) text(x, y int, style tcell.Style, s string) {
	for _, r := range s {
		d.screen.SetContent(x, y, r, nil, style)
		x++
	}
}

func rgb(c models.Color) tcell.Color {
	return tcell.NewRGBColor(int32(c.R), int32(c.G), int32(c.B))
}
