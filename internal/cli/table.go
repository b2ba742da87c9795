package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/matzehuels/netmeta/pkg/contrast"
	"github.com/matzehuels/netmeta/pkg/estimator"
	"github.com/matzehuels/netmeta/pkg/forest"
	"github.com/matzehuels/netmeta/pkg/league"
	"github.com/matzehuels/netmeta/pkg/network"
	"github.com/matzehuels/netmeta/pkg/ranking"
)

// tableWriter renders tables as terminal boxes or GitHub-flavoured
// Markdown.
type tableWriter struct {
	w        io.Writer
	markdown bool
}

func (tw tableWriter) newTable() table.Writer {
	t := table.NewWriter()
	if !tw.markdown {
		t.SetStyle(table.StyleLight)
	}
	return t
}

func (tw tableWriter) render(t table.Writer) {
	if tw.markdown {
		fmt.Fprintln(tw.w, t.RenderMarkdown())
		return
	}
	fmt.Fprintln(tw.w, t.Render())
}

// rightAlign right-aligns the given 1-based columns.
func rightAlign(t table.Writer, cols ...int) {
	cfgs := make([]table.ColumnConfig, len(cols))
	for i, c := range cols {
		cfgs[i] = table.ColumnConfig{Number: c, Align: text.AlignRight}
	}
	t.SetColumnConfigs(cfgs)
}

func num(x float64) string {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return "-"
	}
	return strconv.FormatFloat(x, 'f', 3, 64)
}

// interval formats an estimate with its confidence limits.
func interval(te, lower, upper float64) string {
	return fmt.Sprintf("%s (%s, %s)", num(te), num(lower), num(upper))
}

func (tw tableWriter) contrasts(cs []contrast.PairwiseContrast) {
	t := tw.newTable()
	t.AppendHeader(table.Row{"Study", "Treat1", "Treat2", "TE", "seTE", "Corrected"})
	for _, c := range cs {
		corrected := ""
		if c.Corrected {
			corrected = "yes"
		}
		t.AppendRow(table.Row{c.Study, c.Treat1, c.Treat2, num(c.TE), num(c.SeTE), corrected})
	}
	rightAlign(t, 4, 5)
	tw.render(t)
}

func (tw tableWriter) network(g *network.Graph) {
	t := tw.newTable()
	t.AppendHeader(table.Row{"Treatment", "Treatment", "Studies"})
	total := 0
	for _, e := range g.Edges {
		t.AppendRow(table.Row{e.A, e.B, e.Studies})
		total += e.Studies
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d treatments", len(g.Nodes)), fmt.Sprintf("%d edges", len(g.Edges)), total})
	rightAlign(t, 3)
	tw.render(t)
}

// league renders one model of a league table. The diagonal carries the
// treatment names; cell (i, j) is the effect of row i relative to column j.
func (tw tableWriter) league(tbl *league.Table, m estimator.Model) {
	mat := tbl.Model(m)
	t := tw.newTable()
	header := table.Row{""}
	for _, name := range tbl.Treatments {
		header = append(header, name)
	}
	t.AppendHeader(header)
	for i, row := range mat {
		r := table.Row{tbl.Treatments[i]}
		for j, c := range row {
			switch {
			case i == j:
				r = append(r, tbl.Treatments[i])
			case c == nil:
				r = append(r, "-")
			default:
				r = append(r, interval(c.TE, c.Lower, c.Upper))
			}
		}
		t.AppendRow(r)
	}
	tw.render(t)
}

func (tw tableWriter) ranking(entries []ranking.Entry) {
	t := tw.newTable()
	t.AppendHeader(table.Row{"Rank", "Treatment", "P-score"})
	for _, e := range entries {
		t.AppendRow(table.Row{e.Rank, e.Treatment, num(e.PScore)})
	}
	rightAlign(t, 1, 3)
	tw.render(t)
}

// forest renders forest rows, back-transforming ratio measures when
// natural is set.
func (tw tableWriter) forest(rows []forest.Row, measure contrast.Measure, level float64, natural bool) {
	label := measure.Scale()
	natural = natural && measure.IsRatio()
	if natural {
		label = strings.TrimPrefix(label, "log ")
	}
	t := tw.newTable()
	t.AppendHeader(table.Row{"Model", "Treatment", "vs", label, fmt.Sprintf("%g%% CI", 100*level), "seTE"})
	for _, r := range rows {
		te, lo, hi := r.TE, r.Lower, r.Upper
		if natural {
			te, lo, hi = math.Exp(te), math.Exp(lo), math.Exp(hi)
		}
		t.AppendRow(table.Row{r.Model, r.Treatment, r.Reference, num(te), fmt.Sprintf("[%s, %s]", num(lo), num(hi)), num(r.SE)})
	}
	rightAlign(t, 4, 5, 6)
	tw.render(t)
}

func (tw tableWriter) heterogeneity(h estimator.Heterogeneity) {
	t := tw.newTable()
	t.AppendHeader(table.Row{"tau²", "tau", "I²", "Q", "df", "p-value"})
	t.AppendRow(table.Row{num(h.Tau2), num(h.Tau), fmt.Sprintf("%.1f%%", 100*h.I2), num(h.Q), h.DF, num(h.PValue)})
	rightAlign(t, 1, 2, 3, 4, 5, 6)
	tw.render(t)
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
