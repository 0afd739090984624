package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vitals/internal/store"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the records table",
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the records table if it does not exist",
	Long: `Init creates the table with its composite (country, year) primary key.
It is available for the postgres and sqlite drivers; with the rest driver,
create the table in the project console.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, s store.Store) error {
			if err := s.EnsureSchema(ctx); err != nil {
				if errors.Is(err, store.ErrSchemaUnsupported) {
					return fmt.Errorf("%w; create the table in the project console", err)
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Table ready")
			return nil
		})
	},
}

var dbPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the store is reachable with the configured credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, s store.Store) error {
			if err := s.Ping(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Store reachable")
			return nil
		})
	},
}

func withStore(cmd *cobra.Command, fn func(context.Context, store.Store) error) error {
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, stageTimeout)
	defer cancel()

	s, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	return fn(ctx, s)
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbInitCmd)
	dbCmd.AddCommand(dbPingCmd)
}
