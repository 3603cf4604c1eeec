package render

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/phylo.report/internal/newick"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viewerRowPx is the vertical space the viewer gives each leaf.
const viewerRowPx = 28

// TreeData converts a viewer tree into go-echarts tree data. Branch lengths
// become node values so they show in the tooltip.
func TreeData(n *newick.JSONNode) opts.TreeData {
	d := opts.TreeData{Name: n.Name}
	if n.BranchLength != nil {
		d.Value = strconv.FormatFloat(*n.BranchLength, 'g', -1, 64)
	}
	if len(n.Children) > 0 {
		d.Children = make([]*opts.TreeData, len(n.Children))
		for i, c := range n.Children {
			child := TreeData(c)
			d.Children[i] = &child
		}
	}
	return d
}

// WriteViewer writes an interactive HTML page showing root.
func WriteViewer(w io.Writer, root *newick.JSONNode, title, subtitle string) error {
	leaves, internal := root.Counts()

	height := leaves*viewerRowPx + 120
	if height < 480 {
		height = 480
	}

	tree := charts.NewTree()
	tree.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:  title,
			Width:      "100%",
			Height:     fmt.Sprintf("%dpx", height),
			AssetsHost: echartsAssetsHost,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("%s leaves=%d internal=%d", subtitle, leaves, internal),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "item", TriggerOn: "mousemove"}),
	)
	tree.AddSeries("tree", []opts.TreeData{TreeData(root)},
		charts.WithTreeOpts(opts.TreeChart{
			Layout:            "orthogonal",
			Orient:            "LR",
			InitialTreeDepth:  -1,
			Roam:              opts.Bool(true),
			ExpandAndCollapse: opts.Bool(true),
			Left:              "5%",
			Right:             "20%",
			Label:             &opts.Label{Show: opts.Bool(true), Position: "left"},
			Leaves: &opts.TreeLeaves{
				Label: &opts.Label{Show: opts.Bool(true), Position: "right"},
			},
		}),
	)

	if err := tree.Render(w); err != nil {
		return fmt.Errorf("render viewer: %w", err)
	}
	return nil
}
