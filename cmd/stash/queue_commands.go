package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"stash/internal/connectivity"
	"stash/internal/kvstore"
	"stash/internal/queue"
	"stash/internal/reconcile"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the sync queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueDrainCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List pending actions in queue order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(_ *kvstore.Store, q *queue.Queue) error {
				items := q.GetAll()
				if jsonOutput {
					return writeJSON(cmd, items)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				maxAttempts := ctx.config.Reconcile.MaxAttempts
				table := tableSpec{
					headers:  []string{"ID", "Action", "Created", "Attempts", "Last Retry", "Data"},
					rows:     buildQueueListRows(items, maxAttempts, time.Now()),
					aligns:   []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
					warn:     func(row int) bool { return items[row].Exhausted(maxAttempts) },
					colorize: shouldColorize(cmd.OutOrStdout()),
				}.render()
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON array")
	return cmd
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var asString bool

	cmd := &cobra.Command{
		Use:   "add <action> [json]",
		Short: "Append an action to the queue",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data any
			if len(args) == 2 {
				value, err := parseValueArg(args[1], asString)
				if err != nil {
					return err
				}
				data = value
			}
			return ctx.withQueue(func(_ *kvstore.Store, q *queue.Queue) error {
				id := q.Add(args[0], data)
				if id == "" {
					return errors.New("add failed: payload could not be encoded")
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&asString, "string", "s", false, "Queue the payload as a JSON string instead of parsing it")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one queued item as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(_ *kvstore.Store, q *queue.Queue) error {
				item, ok := q.Get(args[0])
				if !ok {
					return fmt.Errorf("item %s not found", args[0])
				}
				return writeJSON(cmd, item)
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>...",
		Short: "Record a failed attempt for items (increments attempts, stamps lastRetry)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(_ *kvstore.Store, q *queue.Queue) error {
				out := cmd.OutOrStdout()
				for _, id := range args {
					if _, ok := q.Get(id); !ok {
						fmt.Fprintf(out, "Item %s not found\n", id)
						continue
					}
					q.Retry(id)
					item, _ := q.Get(id)
					fmt.Fprintf(out, "Item %s marked for retry (attempts %d)\n", id, item.Attempts)
				}
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>...",
		Aliases: []string{"remove"},
		Short:   "Remove items from the queue",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(_ *kvstore.Store, q *queue.Queue) error {
				out := cmd.OutOrStdout()
				for _, id := range args {
					if _, ok := q.Get(id); !ok {
						fmt.Fprintf(out, "Item %s not found\n", id)
						continue
					}
					q.Remove(id)
					fmt.Fprintf(out, "Item %s removed\n", id)
				}
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every queued item",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("refusing to clear without --force")
			}
			return ctx.withQueue(func(_ *kvstore.Store, q *queue.Queue) error {
				count := q.Len()
				q.Clear()
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d queue items\n", count)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Confirm the deletion")
	return cmd
}

func newQueueDrainCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Apply pending items against the reconcile endpoint once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			applier, err := reconcile.NewApplier(cfg)
			if err != nil {
				return fmt.Errorf("%w (set reconcile.endpoint or STASH_RECONCILE_ENDPOINT)", err)
			}
			return ctx.withQueue(func(_ *kvstore.Store, q *queue.Queue) error {
				tracker := connectivity.NewTracker(true, ctx.cliLogger())
				driver := reconcile.NewDriver(q, tracker, applier, reconcile.OptionsFromConfig(cfg, ctx.cliLogger()))
				result := driver.Drain(cmd.Context())
				if jsonOutput {
					return writeJSON(cmd, map[string]any{
						"applied": result.Applied,
						"failed":  result.Failed,
						"skipped": result.Skipped,
						"stopped": result.Stopped,
						"pending": q.Len(),
					})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d, failed %d, skipped %d; %d pending\n",
					result.Applied, result.Failed, result.Skipped, q.Len())
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON object")
	return cmd
}
