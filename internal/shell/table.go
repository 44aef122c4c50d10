package shell

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/loykin/procsched/internal/scheduler"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)

	stateColors = map[scheduler.State]lipgloss.Color{
		scheduler.StateReady:      lipgloss.Color("39"),
		scheduler.StateRunning:    lipgloss.Color("42"),
		scheduler.StateSuspended:  lipgloss.Color("214"),
		scheduler.StateTerminated: lipgloss.Color("241"),
	}
)

// RenderTable draws the process table. Colors are dropped automatically when
// the output is not a terminal.
func RenderTable(rows []scheduler.Row, verbose bool) string {
	headers := []string{"PID", "Process Number", "State"}
	if verbose {
		headers = append(headers, "OS Status", "Exit")
	}
	data := make([][]string, 0, len(rows))
	for _, r := range rows {
		rec := []string{strconv.Itoa(r.PID), strconv.Itoa(r.ID), r.State.String()}
		if verbose {
			rec = append(rec, r.OSStatus, r.ExitError)
		}
		data = append(data, rec)
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 2 && row >= 0 && row < len(rows) {
				return cellStyle.Foreground(stateColors[rows[row].State])
			}
			return cellStyle
		})
	return t.Render()
}
