package main

import (
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"storyloom/internal/session"
	"storyloom/internal/story"
)

const (
	sessionTimeFormat    = "2006-01-02 15:04"
	checkpointTimeFormat = "2006-01-02 15:04:05"
	ideaColumnWidth      = 48
	detailColumnWidth    = 60
)

// newTableWriter applies the rounded house style, switching to the
// colored style when the destination is a terminal.
func newTableWriter(dest io.Writer) table.Writer {
	tw := table.NewWriter()
	if shouldColorize(dest) {
		tw.SetStyle(table.StyleColoredDark)
	} else {
		tw.SetStyle(table.StyleRounded)
	}
	return tw
}

// renderSessionTable lists sessions one row each, truncating the idea so
// long pitches do not wrap the terminal.
func renderSessionTable(dest io.Writer, sessions []*session.Session) string {
	tw := newTableWriter(dest)
	tw.AppendHeader(table.Row{"ID", "Status", "Mode", "Phase", "Idea", "Updated"})
	for _, sess := range sessions {
		tw.AppendRow(table.Row{
			sess.SessionID,
			sess.Status.String(),
			sess.Mode,
			sess.Phase,
			truncate(sess.Idea, ideaColumnWidth),
			sess.UpdatedAt.Local().Format(sessionTimeFormat),
		})
	}
	return tw.Render()
}

// renderCheckpointTable lists a session's step log in append order.
func renderCheckpointTable(dest io.Writer, checkpoints []*session.Checkpoint) string {
	tw := newTableWriter(dest)
	tw.AppendHeader(table.Row{"#", "Step", "Phase", "At"})
	for _, cp := range checkpoints {
		tw.AppendRow(table.Row{
			cp.ID,
			cp.StepName,
			cp.Phase,
			cp.CreatedAt.Local().Format(checkpointTimeFormat),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

// renderTaskTable lists video task records sorted by shot ID. The detail
// column carries the video URL for finished renders and the provider
// error for failed ones.
func renderTaskTable(dest io.Writer, tasks map[string]*story.TaskRecord) string {
	shotIDs := make([]string, 0, len(tasks))
	for shotID := range tasks {
		shotIDs = append(shotIDs, shotID)
	}
	sort.Strings(shotIDs)

	tw := newTableWriter(dest)
	tw.AppendHeader(table.Row{"Shot", "Provider", "Status", "Detail"})
	for _, shotID := range shotIDs {
		rec := tasks[shotID]
		detail := rec.VideoURL
		if rec.Error != "" {
			detail = rec.Error
		}
		tw.AppendRow(table.Row{shotID, rec.Provider, string(rec.Status), truncate(detail, detailColumnWidth)})
	}
	return tw.Render()
}
