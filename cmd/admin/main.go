package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"chatrelay/backend/internal/config"
	"chatrelay/backend/internal/models"
	"chatrelay/backend/internal/storage"

	"github.com/spf13/cobra"
)

var (
	storeDriver   string
	storeLocation string
	outputFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Inspect the chat relay's message store",
	Long: `admin reads the relay's message store directly. It never writes.

Store settings default to the relay's own environment (STORE_DRIVER,
DATABASE_URL, SQLITE_PATH, BADGER_PATH). A badger directory can only be
opened while the relay is stopped.`,
	SilenceUsage: true,
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List rooms with their stored message counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, s storage.MessageStore) error {
			rooms, err := s.ListRooms(ctx)
			if err != nil {
				return err
			}
			return printRooms(cmd.OutOrStdout(), rooms)
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <room>",
	Short: "Print the stored messages of a room in order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, s storage.MessageStore) error {
			messages, err := s.LoadAll(ctx, args[0])
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), messages)
		})
	},
}

func init() {
	cfg := defaults()

	rootCmd.PersistentFlags().StringVar(&storeDriver, "driver", cfg.StoreDriver, "store driver: sqlite, postgres or badger")
	rootCmd.PersistentFlags().StringVar(&storeLocation, "dsn", "", "store DSN or path (defaults to the driver's configured location)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "table", "output format: table or json")

	rootCmd.AddCommand(roomsCmd, historyCmd)
}

// defaults reads the relay's environment without failing on incomplete
// configuration; flags can fill the gaps.
func defaults() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		return &config.Config{
			StoreDriver: config.DriverSQLite,
			SQLitePath:  "./data/chatrelay.db",
			BadgerPath:  "./data/badger",
		}
	}
	return cfg
}

func withStore(ctx context.Context, fn func(context.Context, storage.MessageStore) error) error {
	location := storeLocation
	if location == "" {
		cfg := defaults()
		cfg.StoreDriver = storeDriver
		location = cfg.StoreLocation()
	}

	s, err := storage.Open(storeDriver, location)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return fn(ctx, s)
}

func printRooms(w io.Writer, rooms []storage.RoomSummary) error {
	if outputFormat == "json" {
		return writeJSON(w, rooms)
	}
	if len(rooms) == 0 {
		fmt.Fprintln(w, "No rooms found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROOM\tMESSAGES")
	for _, r := range rooms {
		fmt.Fprintf(tw, "%s\t%d\n", r.Room, r.Messages)
	}
	return tw.Flush()
}

func printHistory(w io.Writer, messages []models.ChatMessage) error {
	if outputFormat == "json" {
		return writeJSON(w, messages)
	}
	if len(messages) == 0 {
		fmt.Fprintln(w, "No messages found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tUSER\tROLE\tTYPE\tCONTENT")
	for _, m := range messages {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", m.ID, m.Timestamp, m.User, m.Role, m.Type, m.Content)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
