package inference

import (
	"fmt"
	"image/color"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/exp/maps"
	"gopkg.in/ini.v1"
)

// UnknownLabel is returned for class indices the label space does not know.
const UnknownLabel = "Unknown"

// DefaultColor highlights text and draws bars for labels without a color.
var DefaultColor = color.RGBA{R: 135, G: 206, B: 250, A: 255}

// Label is one classification category.
type Label struct {
	Name  string
	Color color.RGBA
}

// LabelSpace maps class indices to labels. It is immutable after
// construction and safe to share between goroutines.
type LabelSpace struct {
	byIndex map[int]Label
	order   []int
	colors  map[string]color.RGBA
}

// NewLabelSpace returns a label space where labels[i] is class i.
func NewLabelSpace(labels ...Label) *LabelSpace {
	m := make(map[int]Label, len(labels))
	for i, l := range labels {
		m[i] = l
	}
	return newLabelSpace(m)
}

func newLabelSpace(m map[int]Label) *LabelSpace {
	ls := &LabelSpace{
		byIndex: m,
		order:   maps.Keys(m),
		colors:  make(map[string]color.RGBA, len(m)),
	}
	slices.Sort(ls.order)
	for _, l := range m {
		ls.colors[l.Name] = l.Color
	}
	return ls
}

// DefaultLabels is the label space of the bundled fintech patent classifiers.
var DefaultLabels = NewLabelSpace(
	Label{Name: "payments", Color: color.RGBA{R: 31, G: 119, B: 180, A: 255}},
	Label{Name: "lending", Color: color.RGBA{R: 255, G: 127, B: 14, A: 255}},
	Label{Name: "insurance", Color: color.RGBA{R: 44, G: 160, B: 44, A: 255}},
	Label{Name: "fraud", Color: color.RGBA{R: 214, G: 39, B: 40, A: 255}},
	Label{Name: "trading", Color: color.RGBA{R: 148, G: 103, B: 189, A: 255}},
	Label{Name: "banking", Color: color.RGBA{R: 140, G: 86, B: 75, A: 255}},
)

// Name returns the label of class i, or UnknownLabel.
func (ls *LabelSpace) Name(i int) string {
	if l, ok := ls.byIndex[i]; ok {
		return l.Name
	}
	return UnknownLabel
}

// Color returns the color of the named label, or DefaultColor.
func (ls *LabelSpace) Color(name string) color.RGBA {
	if c, ok := ls.colors[name]; ok {
		return c
	}
	return DefaultColor
}

// Colors returns a copy of the label name to color mapping.
func (ls *LabelSpace) Colors() map[string]color.RGBA {
	out := make(map[string]color.RGBA, len(ls.colors))
	for k, v := range ls.colors {
		out[k] = v
	}
	return out
}

// Labels returns the labels in class index order.
func (ls *LabelSpace) Labels() []Label {
	out := make([]Label, 0, len(ls.order))
	for _, i := range ls.order {
		out = append(out, ls.byIndex[i])
	}
	return out
}

// Len returns the number of known labels.
func (ls *LabelSpace) Len() int {
	return len(ls.order)
}

// LoadLabelSpace reads a label space from an INI file with one section per
// class index:
//
//	[3]
//	name  = fraud
//	color = 214, 39, 40
//
// The color key is optional.
func LoadLabelSpace(path string) (*LabelSpace, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading labels %s: %w", path, err)
	}

	m := make(map[int]Label)
	for _, sec := range file.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		idx, err := strconv.Atoi(sec.Name())
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("labels %s: section %q is not a class index", path, sec.Name())
		}

		name := strings.TrimSpace(sec.Key("name").String())
		if name == "" {
			return nil, fmt.Errorf("labels %s: class %d has no name", path, idx)
		}

		c := DefaultColor
		if raw := sec.Key("color").String(); raw != "" {
			if c, err = parseRGB(raw); err != nil {
				return nil, fmt.Errorf("labels %s: class %d: %w", path, idx, err)
			}
		}
		m[idx] = Label{Name: name, Color: c}
	}

	if len(m) == 0 {
		return nil, fmt.Errorf("labels %s: no classes defined", path)
	}
	return newLabelSpace(m), nil
}

// parseRGB parses "R, G, B" with components in 0-255.
func parseRGB(s string) (color.RGBA, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return color.RGBA{}, fmt.Errorf("color %q: want R, G, B", s)
	}

	var rgb [3]uint8
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return color.RGBA{}, fmt.Errorf("color %q: %v", s, err)
		}
		rgb[i] = uint8(v)
	}
	return color.RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255}, nil
}
