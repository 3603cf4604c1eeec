package render

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/phylo.report/internal/newick"
)

const (
	svgWidth     = 8 * vg.Inch
	rowHeight    = 0.3 * vg.Inch
	minSVGHeight = 2 * vg.Inch
	// labelRoom widens the X range so leaf names fit right of the tips.
	labelRoom = 0.3
)

var branchColor = color.RGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff}

// WriteSVG draws root as a dendrogram and writes it to w as SVG.
func WriteSVG(w io.Writer, root *newick.JSONNode, title string) error {
	layout := NewLayout(root)

	p := plot.New()
	p.Title.Text = title
	p.HideY()
	if layout.Scaled {
		p.X.Label.Text = "branch length"
	} else {
		p.X.Label.Text = "depth"
	}

	for _, s := range layout.Segments {
		line, err := plotter.NewLine(plotter.XYs{{X: s.From.X, Y: s.From.Y}, {X: s.To.X, Y: s.To.Y}})
		if err != nil {
			return fmt.Errorf("branch line: %w", err)
		}
		line.Color = branchColor
		line.Width = vg.Points(1)
		p.Add(line)
	}

	if len(layout.Leaves) > 0 {
		labels := plotter.XYLabels{
			XYs:    make(plotter.XYs, len(layout.Leaves)),
			Labels: make([]string, len(layout.Leaves)),
		}
		for i, leaf := range layout.Leaves {
			labels.XYs[i] = plotter.XY{X: leaf.X, Y: leaf.Y}
			labels.Labels[i] = leaf.Name
		}
		names, err := plotter.NewLabels(labels)
		if err != nil {
			return fmt.Errorf("leaf labels: %w", err)
		}
		names.Offset = vg.Point{X: vg.Points(4), Y: -vg.Points(4)}
		p.Add(names)
	}

	depth := layout.Depth
	if depth == 0 {
		depth = 1
	}
	p.X.Min = 0
	p.X.Max = depth * (1 + labelRoom)
	p.Y.Min = -0.5
	p.Y.Max = float64(len(layout.Leaves)) - 0.5

	height := rowHeight * vg.Length(len(layout.Leaves)+2)
	if height < minSVGHeight {
		height = minSVGHeight
	}

	wt, err := p.WriterTo(svgWidth, height, "svg")
	if err != nil {
		return fmt.Errorf("svg canvas: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write svg: %w", err)
	}
	return nil
}
