package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"storyloom/internal/story"
)

func printState(cmd *cobra.Command, st *story.State) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session: %s\n", st.SessionID)
	fmt.Fprintf(out, "Mode:    %s\n", st.Mode)
	fmt.Fprintf(out, "Phase:   %s\n", st.Phase)
	if st.PendingApproval {
		fmt.Fprintf(out, "Waiting: approve or reject the %s output\n", st.ApprovalType)
	}
	if st.Error != "" {
		fmt.Fprintf(out, "Error:   %s (failed in %s; `storyloom resume %s` retries)\n", st.Error, st.ErrorPhase, st.SessionID)
	}
}

func printArtifacts(cmd *cobra.Command, st *story.State) {
	out := cmd.OutOrStdout()
	if st.Outline != nil {
		fmt.Fprintf(out, "Outline: %s\n", st.Outline.Title)
	}
	if len(st.Characters) > 0 {
		fmt.Fprintf(out, "Characters: %d\n", len(st.Characters))
	}
	if len(st.Episodes) > 0 {
		shots := len(st.Shots())
		fmt.Fprintf(out, "Episodes: %d (%d shots)\n", len(st.Episodes), shots)
	}
	if len(st.VideoPrompts) > 0 {
		fmt.Fprintf(out, "Prompts: %d\n", len(st.VideoPrompts))
	}
	if len(st.VideoTasks) > 0 {
		var completed, failed int
		for _, rec := range st.VideoTasks {
			switch rec.Status {
			case story.TaskCompleted:
				completed++
			case story.TaskFailed:
				failed++
			}
		}
		fmt.Fprintf(out, "Videos: %d completed, %d failed, %d in flight\n",
			completed, failed, len(st.VideoTasks)-completed-failed)
	}
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
