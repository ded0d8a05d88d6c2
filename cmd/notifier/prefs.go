package main

import (
	"context"
	"fmt"
	"strings"

	"notification_reconciler/internal/app"
	"notification_reconciler/internal/domain/notification"
	"notification_reconciler/internal/infra/config"
	"notification_reconciler/internal/infra/telegram"

	"github.com/spf13/cobra"
)

func prefsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show or change notification preferences",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored suppression settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPreferences(func(svc *app.PreferencesService) error {
				cfg, err := svc.Get(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), telegram.FormatPreferences(cfg))
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <push|budget|device|tips> <on|off>",
		Short: "Turn a notification type on or off",
		Long: `Turn a notification type on or off.

Examples:
  # Mute budget alerts
  notifier prefs set budget off

  # Turn everything back on
  notifier prefs set push on`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := notification.PreferenceKey(strings.ToLower(args[0]))
			value, err := parseSwitch(args[1])
			if err != nil {
				return err
			}
			return withPreferences(func(svc *app.PreferencesService) error {
				cfg, err := svc.Set(cmd.Context(), key, value)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), telegram.FormatPreferences(cfg))
				return nil
			})
		},
	})
	return cmd
}

func withPreferences(fn func(svc *app.PreferencesService) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("could not load application configuration: %w", err)
	}
	store, err := openKV(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(app.NewPreferencesService(app.NewPreferencesStore(store)))
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid value %q: use on or off", s)
	}
}

func dedupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "Inspect the processed id history",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print how many candidate ids are recorded as processed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("could not load application configuration: %w", err)
			}
			store, err := openKV(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			dedup := app.NewDedupStore(ctx, store, cfg.DedupMaxEntries, stderrLogger())

			retention := "unbounded"
			if cfg.DedupMaxEntries > 0 {
				retention = fmt.Sprintf("newest %d", cfg.DedupMaxEntries)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "driver: %s\nprocessed ids: %d\nretention: %s\n", cfg.KVDriver, dedup.Count(), retention)
			return nil
		},
	})
	return cmd
}
