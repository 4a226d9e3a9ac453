package main

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"captionflow/internal/contextstore"
	"captionflow/internal/ledger"
	"captionflow/internal/models"
	"captionflow/internal/worker/stages"
)

type topicDepth struct {
	Topic      string `json:"topic"`
	Pending    int64  `json:"pending"`
	Processing int64  `json:"processing"`
}

func newQueueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show pending and in-flight jobs per topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := ctx.queue(cmd.Context())
			if err != nil {
				return err
			}

			var depths []topicDepth
			for _, topic := range stages.AllTopics() {
				pending, processing, err := q.Depth(cmd.Context(), topic)
				if err != nil {
					return err
				}
				depths = append(depths, topicDepth{Topic: topic, Pending: pending, Processing: processing})
			}
			if ctx.json() {
				return writeJSON(cmd, depths)
			}

			rows := make([][]string, 0, len(depths))
			for _, d := range depths {
				rows = append(rows, []string{d.Topic, strconv.FormatInt(d.Pending, 10), strconv.FormatInt(d.Processing, 10)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Topic", "Pending", "Processing"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}
}

func newContextCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "context <workflow-id>",
		Short: "Show the artifacts recorded for a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.contextStore(cmd.Context())
			if err != nil {
				return err
			}
			snap, err := store.Snapshot(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ctx.json() {
				return writeJSON(cmd, snap)
			}
			if len(snap) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No context recorded for %s\n", args[0])
				return nil
			}

			var rows [][]string
			for _, key := range contextstore.AllKeys {
				if e, ok := snap[key]; ok {
					rows = append(rows, []string{string(key), string(e.ExtensionFile), e.FilePath})
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Stage", "Type", "Path"}, rows, nil))
			return nil
		},
	}
}

func newWorkflowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "workflow <workflow-id>",
		Short: "Show the ledger record of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			led, err := ctx.workflowLedger(cmd.Context())
			if err != nil {
				return err
			}
			wf, err := led.Get(cmd.Context(), args[0])
			if errors.Is(err, ledger.ErrWorkflowNotFound) {
				return fmt.Errorf("workflow %s not found", args[0])
			}
			if err != nil {
				return err
			}
			if ctx.json() {
				return writeJSON(cmd, wf)
			}

			colorize := shouldColorize(cmd.OutOrStdout())
			rows := [][]string{
				{"ID", wf.ID},
				{"Pipeline", wf.Pipeline},
				{"Status", statusLabel(wf.Status, colorize)},
				{"Stage", orDash(wf.Stage)},
				{"Error", orDash(wf.Error)},
				{"Video URL", orDash(wf.VideoURL)},
				{"Audio URL", orDash(wf.AudioURL)},
				{"Subtitles URL", orDash(wf.SubtitlesURL)},
				{"Output", orDash(wf.OutputPath)},
				{"Created", wf.CreatedAt.Local().Format("2006-01-02 15:04:05")},
				{"Updated", wf.UpdatedAt.Local().Format("2006-01-02 15:04:05")},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
}

func newWorkflowsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var status string

	cmd := &cobra.Command{
		Use:   "workflows",
		Short: "List recent workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			led, err := ctx.workflowLedger(cmd.Context())
			if err != nil {
				return err
			}
			items, err := led.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if status != "" {
				items = slices.DeleteFunc(items, func(w models.Workflow) bool {
					return string(w.Status) != status
				})
			}
			if ctx.json() {
				if items == nil {
					items = []models.Workflow{}
				}
				return writeJSON(cmd, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No workflows")
				return nil
			}

			colorize := shouldColorize(cmd.OutOrStdout())
			rows := make([][]string, 0, len(items))
			for _, w := range items {
				rows = append(rows, []string{
					w.ID,
					w.Pipeline,
					statusLabel(w.Status, colorize),
					orDash(w.Stage),
					w.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Pipeline", "Status", "Stage", "Updated"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of workflows")
	cmd.Flags().StringVar(&status, "status", "", "Only show workflows with this status")
	return cmd
}
