package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"stash/internal/config"
	"stash/internal/kvstore"
)

func newKVCommand(ctx *commandContext) *cobra.Command {
	kvCmd := &cobra.Command{
		Use:   "kv",
		Short: "Read and write namespaced keys",
	}

	kvCmd.AddCommand(newKVGetCommand(ctx))
	kvCmd.AddCommand(newKVSetCommand(ctx))
	kvCmd.AddCommand(newKVRemoveCommand(ctx))
	kvCmd.AddCommand(newKVKeysCommand(ctx))
	kvCmd.AddCommand(newKVClearCommand(ctx))
	kvCmd.AddCommand(newKVSpaceCommand(ctx))

	return kvCmd
}

func newKVGetCommand(ctx *commandContext) *cobra.Command {
	var defaultValue string

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the JSON value stored under key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *kvstore.Store) error {
				raw, ok := store.GetRaw(args[0])
				if !ok {
					if !cmd.Flags().Changed("default") {
						return fmt.Errorf("key %q not found", args[0])
					}
					raw = json.RawMessage(defaultValue)
				}
				return writeIndentedJSON(cmd, raw)
			})
		},
	}

	cmd.Flags().StringVar(&defaultValue, "default", "", "JSON value printed when the key is absent")
	return cmd
}

func newKVSetCommand(ctx *commandContext) *cobra.Command {
	var asString bool

	cmd := &cobra.Command{
		Use:   "set <key> <json>",
		Short: "Store a JSON value under key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := parseValueArg(args[1], asString)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *kvstore.Store) error {
				if !store.Set(args[0], value) {
					return fmt.Errorf("write %q failed (quota exceeded or storage unavailable; see stderr)", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&asString, "string", "s", false, "Store the argument as a JSON string instead of parsing it")
	return cmd
}

func newKVRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <key>...",
		Aliases: []string{"remove"},
		Short:   "Delete keys",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *kvstore.Store) error {
				for _, key := range args {
					if !store.Remove(key) {
						return fmt.Errorf("remove %q failed", key)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", key)
				}
				return nil
			})
		},
	}
}

func newKVKeysCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "List keys in the configured namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *kvstore.Store) error {
				keys := store.Keys()
				if jsonOutput {
					return writeJSON(cmd, keys)
				}
				if len(keys) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No keys under prefix %q\n", store.Prefix())
					return nil
				}
				for _, key := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), key)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON array")
	return cmd
}

func newKVClearCommand(ctx *commandContext) *cobra.Command {
	var namespaceOnly bool
	var force bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete stored keys (all keys unless storage.clear_scope or --namespace narrows it)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("refusing to clear without --force")
			}
			return ctx.withStore(func(store *kvstore.Store) error {
				var ok bool
				if namespaceOnly {
					ok = store.ClearNamespace()
				} else {
					ok = store.Clear()
				}
				if !ok {
					return fmt.Errorf("clear failed")
				}
				scope := "all keys"
				if namespaceOnly || ctx.config.Storage.ClearScope == config.ClearScopeNamespace {
					scope = fmt.Sprintf("keys under prefix %q", store.Prefix())
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", scope)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&namespaceOnly, "namespace", false, "Only remove keys under the configured prefix")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Confirm the deletion")
	return cmd
}

func newKVSpaceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "space",
		Short: "Report remaining storage headroom",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *kvstore.Store) error {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Space: %s\n", store.RemainingSpace())
				usage, ok := store.Usage()
				if !ok {
					return nil
				}
				fmt.Fprintf(out, "Used:  %s in %d keys\n", humanize.IBytes(uint64(usage.UsedBytes)), usage.Keys)
				if usage.QuotaBytes > 0 {
					fmt.Fprintf(out, "Quota: %s\n", humanize.IBytes(uint64(usage.QuotaBytes)))
				} else {
					fmt.Fprintln(out, "Quota: unlimited")
				}
				return nil
			})
		},
	}
}

func parseValueArg(arg string, asString bool) (any, error) {
	if asString {
		return arg, nil
	}
	trimmed := strings.TrimSpace(arg)
	if !json.Valid([]byte(trimmed)) {
		return nil, fmt.Errorf("value %q is not valid JSON (use --string to store it as text)", arg)
	}
	return json.RawMessage(trimmed), nil
}
