package main

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column describes one table column. Count columns are right-aligned and,
// when the table has a totals row, summed into it.
type column struct {
	title string
	count bool
}

func textColumns(titles ...string) []column {
	cols := make([]column, len(titles))
	for i, title := range titles {
		cols[i] = column{title: title}
	}
	return cols
}

type tableOptions struct {
	totals bool
}

func renderTable(cols []column, rows [][]string, opts tableOptions) string {
	if len(cols) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(cols))
	configs := make([]table.ColumnConfig, len(cols))
	for i, col := range cols {
		header[i] = col.title
		align := text.AlignLeft
		if col.count {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignFooter: align, AlignHeader: text.AlignLeft}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	sums := make([]int, len(cols))
	for _, row := range rows {
		r := make(table.Row, len(cols))
		for i, col := range cols {
			if i >= len(row) {
				r[i] = ""
				continue
			}
			r[i] = row[i]
			if col.count {
				if n, err := strconv.Atoi(row[i]); err == nil {
					sums[i] += n
				}
			}
		}
		tw.AppendRow(r)
	}

	if opts.totals && len(rows) > 1 {
		footer := make(table.Row, len(cols))
		footer[0] = "Total"
		for i := 1; i < len(cols); i++ {
			if cols[i].count {
				footer[i] = strconv.Itoa(sums[i])
			}
		}
		tw.AppendFooter(footer)
	}

	return tw.Render() + "\n"
}
