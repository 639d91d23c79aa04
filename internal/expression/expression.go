// Package expression holds the robot's LED-matrix faces and renders them.
package expression

import (
	"errors"
	"fmt"
	"sort"

	"sphero-behavior/internal/interfaces"
	"sphero-behavior/internal/models"
)

// Name identifies an expression.
type Name string

const (
	Neutral Name = "ishmael"
	Smile   Name = "smile"
	Frown   Name = "frown"
	Angry   Name = "angry"
	Tear    Name = "tear"
	Sleep   Name = "sleep"
	Wave    Name = "wave"
)

// Expression is a matrix image plus the color for both indicator LEDs.
type Expression struct {
	Name      Name
	Matrix    models.Matrix
	Indicator models.Color
}

// palette maps pattern characters to colors; '0' is transparent.
var palette = map[byte]*models.Color{
	'w': {R: 255, G: 255, B: 255},
	'o': {R: 220, G: 80, B: 0},
	'y': {R: 255, G: 255, B: 0},
	'b': {R: 150, G: 100, B: 60},
	'r': {R: 255, G: 0, B: 0},
	'a': {R: 189, G: 102, B: 58},
	'l': {R: 70, G: 138, B: 255},
	'0': nil,
}

var patterns = map[Name][]string{
	Neutral: {
		"0wbbbbw0",
		"woooooow",
		"oooooooo",
		"ooyooyoo",
		"ooyooyoo",
		"oooooooo",
		"0o0oo0o0",
		"oo0oo0oo",
	},
	Angry: {
		"0wbbbbw0",
		"wooororw",
		"ooorrorr",
		"oooooooo",
		"ooorrorr",
		"oooororo",
		"0o0oo0o0",
		"oo0oo0oo",
	},
	Smile: {
		"0wbbbbw0",
		"woooooow",
		"oooooooo",
		"oyooooyo",
		"yoyooyoy",
		"oooooooo",
		"0o0oo0o0",
		"oo0oo0oo",
	},
	Frown: {
		"0wbbbbw0",
		"woooooow",
		"oooooooo",
		"oooooooo",
		"oyyaayyo",
		"oooooooo",
		"0o0oo0o0",
		"oo0oo0oo",
	},
	Tear: {
		"0wbbbbw0",
		"woooooow",
		"oooooooo",
		"oooooooo",
		"oyyooyyo",
		"oooooolo",
		"0o0oo0o0",
		"oo0oo0oo",
	},
	Sleep: {
		"0wbbbbw0",
		"woooooow",
		"oooooooo",
		"oooooooo",
		"oyyooyyo",
		"oooooooo",
		"0o0oo0o0",
		"oo0oo0oo",
	},
	Wave: {
		"00000000",
		"000000ll",
		"000000l0",
		"0000lll0",
		"0000l000",
		"00lll000",
		"00l00000",
		"lll00000",
	},
}

var indicators = map[Name]models.Color{
	Neutral: models.ColorOff,
	Smile:   {R: 255, G: 255, B: 0},
	Frown:   {R: 150, G: 100, B: 60},
	Angry:   models.ColorRed,
	Tear:    {R: 70, G: 138, B: 255},
	Sleep:   models.ColorOff,
	Wave:    {R: 70, G: 138, B: 255},
}

var library = mustBuild()

// ErrUnknownExpression is returned for names outside the library.
var ErrUnknownExpression = errors.New("unknown expression")

func mustBuild() map[Name]Expression {
	lib := make(map[Name]Expression, len(patterns))
	for name, rows := range patterns {
		m, err := ParsePattern(rows)
		if err != nil {
			panic(fmt.Sprintf("expression %s: %v", name, err))
		}
		lib[name] = Expression{Name: name, Matrix: m, Indicator: indicators[name]}
	}
	return lib
}

// ParsePattern converts eight rows of palette characters into a matrix.
func ParsePattern(rows []string) (models.Matrix, error) {
	var m models.Matrix
	if len(rows) != models.MatrixSize {
		return m, fmt.Errorf("want %d rows, got %d", models.MatrixSize, len(rows))
	}
	for r, row := range rows {
		if len(row) != models.MatrixSize {
			return m, fmt.Errorf("row %d: want %d cells, got %d", r, models.MatrixSize, len(row))
		}
		for c := 0; c < models.MatrixSize; c++ {
			color, ok := palette[row[c]]
			if !ok {
				return m, fmt.Errorf("row %d col %d: unknown palette key %q", r, c, row[c])
			}
			if color != nil {
				px := *color
				m[r][c] = &px
			}
		}
	}
	return m, nil
}

// Lookup returns the named expression.
func Lookup(name Name) (Expression, error) {
	e, ok := library[name]
	if !ok {
		return Expression{}, fmt.Errorf("%w: %s (available: %v)", ErrUnknownExpression, name, Names())
	}
	return e, nil
}

// Names lists available expressions in sorted order.
func Names() []Name {
	names := make([]Name, 0, len(library))
	for n := range library {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// ForState returns the expression shown on entry to a state.
func ForState(s models.State) Name {
	switch s {
	case models.StateSleep:
		return Sleep
	case models.StatePatrol:
		return Wave
	case models.StateAngry:
		return Angry
	case models.StateSatisfied:
		return Smile
	default:
		return Neutral
	}
}

// Show clears the matrix, renders the expression and sets both indicator LEDs.
// All steps are attempted; their errors are joined.
func Show(eff interfaces.Effector, name Name) error {
	e, err := Lookup(name)
	if err != nil {
		return err
	}
	var errs []error
	if err := eff.ClearMatrix(); err != nil {
		errs = append(errs, fmt.Errorf("clear matrix: %w", err))
	}
	if err := eff.RenderMatrix(e.Matrix); err != nil {
		errs = append(errs, fmt.Errorf("render %s: %w", name, err))
	}
	for _, led := range []models.Indicator{models.IndicatorFront, models.IndicatorBack} {
		if err := eff.SetIndicatorColor(led, e.Indicator); err != nil {
			errs = append(errs, fmt.Errorf("%s led: %w", led, err))
		}
	}
	return errors.Join(errs...)
}
