package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/KAsare1/postly/cmd/api"
	"github.com/KAsare1/postly/cmd/config"
	"github.com/KAsare1/postly/cmd/utils"
	"github.com/KAsare1/postly/db"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	envFile  string
	logLevel string
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "postly",
		Short: "Postly - a small blogging platform",
		Long: `Postly serves a blogging site: posts, groups, comments and follow feeds.

Run "postly serve" to start the HTTP server and "postly migrate" to create the schema.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Env file to load (defaults to .env when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides LOG_LEVEL)")

	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newClearDBCmd(),
		newGroupCmd(),
		newUserCmd(),
	)
	return rootCmd
}

// setup loads the configuration, installs the logger and opens the database.
func setup() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := utils.InitLogger(cfg.LogLevel); err != nil {
		return nil, nil, err
	}

	DB, err := db.NewPSQLStorage(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database initialization error: %w", err)
	}
	return cfg, DB, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, DB, err := setup()
			if err != nil {
				return err
			}
			defer db.Close(DB)

			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return api.NewApiServer(cfg, DB).Run(ctx)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and media directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, DB, err := setup()
			if err != nil {
				return err
			}
			defer db.Close(DB)

			return db.Migrate(DB, cfg.MediaRoot)
		},
	}
}

func newClearDBCmd() *cobra.Command {
	var (
		yes    bool
		tables []string
	)

	cmd := &cobra.Command{
		Use:   "clear-db",
		Short: "Drop tables",
		Long: `Drop the given tables, or every table when --tables is not set.

Examples:
  postly clear-db                       # Drop everything after a confirmation prompt
  postly clear-db --tables Follow,Comment --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, DB, err := setup()
			if err != nil {
				return err
			}
			defer db.Close(DB)

			if !yes && !confirm(cmd, "Are you sure you want to clear the database? (yes/no): ") {
				fmt.Fprintln(cmd.OutOrStdout(), "Database clearing cancelled.")
				return nil
			}

			names := lo.Compact(lo.Map(tables, func(name string, _ int) string {
				return strings.TrimSpace(name)
			}))
			if err := db.ClearDatabase(DB, names); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database cleared successfully")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	cmd.Flags().StringSliceVar(&tables, "tables", nil, "Tables to drop: User, Group, Post, Comment, Follow")
	return cmd
}

func newGroupCmd() *cobra.Command {
	groupCmd := &cobra.Command{
		Use:   "group",
		Short: "Manage groups",
	}

	var description string
	createCmd := &cobra.Command{
		Use:   "create <slug> <title>",
		Short: "Create a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, DB, err := setup()
			if err != nil {
				return err
			}
			defer db.Close(DB)

			group, err := db.CreateGroup(cmd.Context(), DB, args[1], args[0], description)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Group %q created (id %d)\n", group.Slug, group.ID)
			return nil
		},
	}
	createCmd.Flags().StringVar(&description, "description", "", "Group description")

	deleteCmd := &cobra.Command{
		Use:   "delete <slug>",
		Short: "Delete a group; its posts are kept without a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, DB, err := setup()
			if err != nil {
				return err
			}
			defer db.Close(DB)

			if err := db.DeleteGroup(cmd.Context(), DB, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Group %q deleted\n", args[0])
			return nil
		},
	}

	groupCmd.AddCommand(createCmd, deleteCmd)
	return groupCmd
}

func newUserCmd() *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	var yes bool
	deleteCmd := &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete an account with its posts, comments and follows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, DB, err := setup()
			if err != nil {
				return err
			}
			defer db.Close(DB)

			if !yes && !confirm(cmd, fmt.Sprintf("Delete %s and everything they wrote? (yes/no): ", args[0])) {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}
			if err := db.DeleteUser(cmd.Context(), DB, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %q deleted\n", args[0])
			return nil
		},
	}
	deleteCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	userCmd.AddCommand(deleteCmd)
	return userCmd
}

func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	return strings.TrimSpace(answer) == "yes"
}
