package main

import (
	"fmt"
	"io"

	"github.com/aleksaelezovic/trigofed/internal/engine"
	"github.com/aleksaelezovic/trigofed/pkg/rdf"
	"github.com/aleksaelezovic/trigofed/pkg/results"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
)

// toResultsTable converts the Ids of a chunk back to terms
func toResultsTable(ec *engine.ExecutionContext, vars []rdf.Variable, c engine.Chunk) (*results.Table, error) {
	out := &results.Table{Variables: vars, Rows: make([][]rdf.Term, 0, c.Table.NumRows())}
	for r := 0; r < c.Table.NumRows(); r++ {
		row := make([]rdf.Term, c.Table.NumColumns())
		for col := range row {
			term, err := ec.IdToTerm(c.Table.At(r, col), c.Vocab)
			if err != nil {
				return nil, err
			}
			row[col] = term
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func render(w io.Writer, t *results.Table, format string) error {
	var data []byte
	var err error
	switch format {
	case "json":
		data, err = results.FormatJSON(t)
		data = append(data, '\n')
	case "csv":
		data, err = results.FormatCSV(t)
	case "tsv":
		data, err = results.FormatTSV(t)
	case "table":
		return renderTable(w, t)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func renderTable(w io.Writer, t *results.Table) error {
	if len(t.Rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)

	header := make(table.Row, len(t.Variables))
	for i, v := range t.Variables {
		header[i] = v.String()
	}
	tw.AppendHeader(header)

	for _, row := range t.Rows {
		out := make(table.Row, len(row))
		for i, term := range row {
			if term == nil {
				out[i] = ""
				continue
			}
			out[i] = term.String()
		}
		tw.AppendRow(out)
	}

	tw.Render()
	_, _ = fmt.Fprintf(w, "(%s rows)\n", humanize.Comma(int64(len(t.Rows))))
	return nil
}
