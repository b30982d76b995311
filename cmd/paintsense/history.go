package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"paintsense/internal/config"
	"paintsense/internal/history"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect stored conversation history",
		Long:  "List, show, and prune conversations recorded in the local history database. Requires history.enabled in the config.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recent conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			ids, err := store.ListConversations(context.Background(), 50)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Println("No conversations recorded.")
				return nil
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show [conversation-id]",
		Short: "Print a conversation's transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			msgs, err := store.Messages(context.Background(), args[0], 0)
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				fmt.Println("No messages for that conversation.")
				return nil
			}
			for _, m := range msgs {
				fmt.Printf("[%s] %s\n", m.Role, m.Text)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete conversations older than the configured retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !cfg.History.Enabled {
				return fmt.Errorf("history is disabled in the config")
			}
			store, err := history.NewSQLiteStore(cfg.History.DBPath, cfg.History.MaxMessagesPerConversation, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Prune(context.Background(), cfg.History.RetentionDays); err != nil {
				return err
			}
			logger.Info("history pruned", "retention_days", cfg.History.RetentionDays)
			return nil
		},
	})

	return cmd
}

func openHistory() (*history.SQLiteStore, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if !cfg.History.Enabled {
		return nil, fmt.Errorf("history is disabled in the config (set history.enabled true)")
	}
	return history.NewSQLiteStore(cfg.History.DBPath, cfg.History.MaxMessagesPerConversation, logger)
}
