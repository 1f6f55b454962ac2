package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/xraph/valueflow"
)

type printer struct {
	out   io.Writer
	world *world
}

func newPrinter(out io.Writer, w *world) *printer {
	return &printer{out: out, world: w}
}

func (p *printer) json(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) rollup(name string, r *valueflow.RollupResult) error {
	if outputFormat == "json" {
		return p.json(r)
	}

	w := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tNAME\tSTAGE\tVALUE\tNOTE")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, n := range r.Path {
		indent := strings.Repeat("  ", n.Depth)
		fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\t%s\n",
			indent, n.Kind, p.world.label(n.ID), n.Stage, n.Value.StringFixed(2), n.Note)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(p.out, "\n%s: %s per unit\n", name, r.ValuePerUnit.StringFixed(2))
	return nil
}

func (p *printer) shares(shares []*valueflow.Share) error {
	if outputFormat == "json" {
		return p.json(shares)
	}

	w := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tEVENT\tTYPE\tPROCESS TYPE\tAMOUNT")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, sh := range shares {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			p.world.label(sh.Event.FromAgent.String()),
			p.world.label(sh.Event.ID.String()),
			sh.Event.Type,
			sh.ProcessType,
			sh.Amount.StringFixed(2))
	}
	return w.Flush()
}

func (p *printer) distribution(r *valueflow.RunResult) error {
	if outputFormat == "json" {
		return p.json(r)
	}

	d := r.Distribution
	money := func(x decimal.Decimal) string { return valueflow.NewMoney(x, d.Currency).String() }
	events := p.rows(r, money)
	sort.SliceStable(events, func(i, j int) bool { return events[i].agent < events[j].agent })

	w := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tAMOUNT\tCLAIM LINES")
	fmt.Fprintln(w, strings.Repeat("-", 40))
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%d\n", e.agent, e.amount, e.lines)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(p.out, "\namount:        %s\n", money(d.Amount))
	fmt.Fprintf(p.out, "distributed:   %s\n", r.Distributed())
	fmt.Fprintf(p.out, "undistributed: %s\n", money(d.Undistributed))
	if !r.Adjustment.IsZero() {
		fmt.Fprintf(p.out, "rounding:      %s\n", r.Adjustment.String())
	}
	return nil
}

type distributionRow struct {
	agent  string
	amount string
	lines  int
}

func (p *printer) rows(r *valueflow.RunResult, money func(decimal.Decimal) string) []*distributionRow {
	out := make([]*distributionRow, 0, len(r.Distribution.Events))
	for _, e := range r.Distribution.Events {
		out = append(out, &distributionRow{
			agent:  p.world.label(e.ToAgent.String()),
			amount: money(e.Quantity),
			lines:  len(e.ClaimEventIDs),
		})
	}
	return out
}
