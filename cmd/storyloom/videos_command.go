package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"storyloom/internal/story"
)

func newVideosCommand(cmdCtx *commandContext) *cobra.Command {
	videosCmd := &cobra.Command{
		Use:   "videos",
		Short: "Inspect and drive video generation tasks",
	}

	videosCmd.AddCommand(newVideosRefreshCommand(cmdCtx))
	videosCmd.AddCommand(newVideosRetryCommand(cmdCtx))
	return videosCmd
}

func newVideosRefreshCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <session-id>",
		Short: "Poll provider status for every in-flight shot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withRuntime(func(ctx context.Context, rt *runtime) error {
				tasks, err := rt.runner.RefreshVideos(ctx, args[0])
				if err != nil {
					return err
				}
				if len(tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No video tasks yet.")
					return nil
				}
				printTasks(cmd, tasks)
				return nil
			})
		},
	}
}

func newVideosRetryCommand(cmdCtx *commandContext) *cobra.Command {
	var platform string

	cmd := &cobra.Command{
		Use:   "retry <session-id> <shot-id>",
		Short: "Resubmit one shot, optionally on a different platform",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCtx.withRuntime(func(ctx context.Context, rt *runtime) error {
				rec, err := rt.runner.RetryVideo(ctx, args[0], args[1], platform)
				if err != nil {
					return err
				}
				printTasks(cmd, map[string]*story.TaskRecord{rec.ShotID: rec})
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&platform, "platform", "", "Submit to this platform instead of the original one")
	return cmd
}

func printTasks(cmd *cobra.Command, tasks map[string]*story.TaskRecord) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTaskTable(out, tasks))
}
