// booknetctl はマイグレーションと開発用トークン発行のための管理コマンド。
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"booknet-backend/internal/platform/auth"
	"booknet-backend/internal/platform/db"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "booknetctl",
		Short:         "Book network admin tool",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", db.DefaultConfigPath, "path to config.yaml")

	root.AddCommand(newMigrateCmd(&configPath), newTokenCmd(&configPath))
	return root
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := db.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			conn, dialect, err := db.Open(cfg.DB)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			if err := db.Migrate(ctx, conn, dialect); err != nil {
				return err
			}
			log.Printf("[INFO] migrations up to date (driver=%s)", dialect)
			return nil
		},
	}
}

func newTokenCmd(configPath *string) *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for an existing user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return fmt.Errorf("--user-id is required")
			}
			cfg, err := db.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			ttl, err := time.ParseDuration(cfg.Auth.TokenTTL)
			if err != nil {
				return fmt.Errorf("invalid auth.token_ttl: %w", err)
			}
			conn, _, err := db.Open(cfg.DB)
			if err != nil {
				return err
			}
			defer conn.Close()

			acct, err := auth.NewStore(conn).GetByID(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if acct == nil {
				return fmt.Errorf("user %d not found", userID)
			}
			token, err := auth.IssueToken([]byte(cfg.Auth.JWTSecret), acct.ID, acct.FullName(), ttl, time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user-id", 0, "user id (sub claim)")
	return cmd
}
