package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aipolab/aipo/internal/memory"
	"github.com/aipolab/aipo/internal/paths"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and manage stored conversations",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every stored conversation",
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Print every turn of one conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsExportCmd = &cobra.Command{
	Use:   "export <conversation-id>",
	Short: "Print one conversation as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsExport,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete one conversation (not supported by the append-only store; use prune)",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

var sessionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Report how many conversations exist (retention policy is operator-managed)",
	RunE:  runSessionsPrune,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsExportCmd, sessionsDeleteCmd, sessionsPruneCmd)
}

func openMemoryStore() (*memory.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, usageErrorf("%v", err)
	}
	dirs, err := paths.Resolve(cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	return memory.Open(filepath.Join(dirs.DataDir, "conversations.db"))
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	store, err := openMemoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	conversations, err := store.ListAll(context.Background())
	if err != nil {
		return err
	}
	for _, c := range conversations {
		fmt.Printf("%s\troot_of=%s\tcreated_at=%s\n", c.ConversationID, c.RootOf, c.CreatedAt.Format("2006-01-02T15:04:05Z"))
	}
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	store, err := openMemoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	turns, err := store.List(context.Background(), args[0])
	if err != nil {
		return usageErrorf("%v", err)
	}
	for _, t := range turns {
		fmt.Printf("[%d] %s: %s\n", t.TurnIndex, t.Role, t.Content)
	}
	return nil
}

func runSessionsExport(cmd *cobra.Command, args []string) error {
	store, err := openMemoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	turns, err := store.List(context.Background(), args[0])
	if err != nil {
		return usageErrorf("%v", err)
	}
	data, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// runSessionsDelete reports the append-only store's limitation rather than
// silently no-oping: ConversationMemory (spec §4.6) has no delete
// operation, only Append/List/Branch, so there is nothing this command can
// safely do short of dropping the whole database.
func runSessionsDelete(cmd *cobra.Command, args []string) error {
	return usageErrorf("sessions delete: conversation memory is append-only; no single-conversation delete exists (see sessions prune)")
}

func runSessionsPrune(cmd *cobra.Command, args []string) error {
	store, err := openMemoryStore()
	if err != nil {
		return err
	}
	defer store.Close()

	conversations, err := store.ListAll(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("%d conversations stored; aipo has no automatic retention policy — remove the data directory to reclaim space\n", len(conversations))
	return nil
}
