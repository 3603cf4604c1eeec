package newick

import (
	"strconv"
	"strings"
)

// Format writes the tree rooted at n as Newick text terminated by ';'.
// Labels that would not survive a re-parse unquoted are single-quoted.
func Format(n *Node) string {
	var b strings.Builder
	writeNode(&b, n)
	b.WriteByte(';')
	return b.String()
}

func writeNode(b *strings.Builder, n *Node) {
	if len(n.Children) > 0 {
		b.WriteByte('(')
		for i, c := range n.Children {
			if i > 0 {
				b.WriteByte(',')
			}
			writeNode(b, c)
		}
		b.WriteByte(')')
	}

	switch {
	case n.Name != "":
		b.WriteString(quoteLabel(n.Name, !n.IsLeaf()))
	case n.Confidence != nil:
		b.WriteString(formatFloat(*n.Confidence))
	}

	if n.BranchLength != nil {
		b.WriteByte(':')
		b.WriteString(formatFloat(*n.BranchLength))
	}
}

func quoteLabel(label string, internal bool) string {
	needsQuote := false
	for i := 0; i < len(label); i++ {
		if isDelimiter(label[i]) {
			needsQuote = true
			break
		}
	}
	// An unquoted numeric internal label would come back as a support value.
	if !needsQuote && internal {
		if _, err := strconv.ParseFloat(label, 64); err == nil {
			needsQuote = true
		}
	}
	if !needsQuote {
		return label
	}
	return "'" + strings.ReplaceAll(label, "'", "''") + "'"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
