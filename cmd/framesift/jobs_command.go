package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/framesift/framesift/internal/store"
)

func newJobsCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List analysis jobs and their results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}

			st := store.New(cfg.Paths.OutputDir)
			stems, err := st.List()
			if err != nil {
				return err
			}
			if len(stems) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No analysis jobs found.")
				return nil
			}

			rows := make([][]string, 0, len(stems))
			for _, stem := range stems {
				artifact, err := st.Load(stem)
				if err != nil || artifact == nil {
					rows = append(rows, []string{stem, "unreadable", "", "", "", "", ""})
					continue
				}
				rows = append(rows, []string{
					artifact.VideoInfo.Filename,
					string(artifact.Job.Status),
					fmt.Sprintf("%d/%d", len(artifact.Frames), artifact.VideoInfo.FramesPlanned),
					strconv.Itoa(len(artifact.Job.SkippedFrames)),
					strconv.Itoa(artifact.Summary.FlaggedFrames),
					strconv.FormatFloat(artifact.Summary.AverageScore, 'f', 2, 64),
					artifact.Summary.AnalysisTime,
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Video", "Status", "Frames", "Skipped", "Flagged", "Avg score", "Updated"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}
