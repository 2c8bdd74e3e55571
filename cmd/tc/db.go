package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/sozodigi/telecare/internal/config"
	"github.com/sozodigi/telecare/internal/db"
	"github.com/spf13/cobra"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBResetCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the Telecare database",
		Long:  "Creates the MySQL database and migrates all tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "telecare.yaml", "path to Telecare config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Fprintf(out, "Loaded config from %s\n", configPath)

	dbc := cfg.Database
	adminDB, err := db.ConnectAdmin(dbc.Host, dbc.Port, dbc.User, dbc.Password)
	if err != nil {
		return fmt.Errorf("connect to MySQL at %s:%d: %w", dbc.Host, dbc.Port, err)
	}
	fmt.Fprintf(out, "Connected to MySQL at %s:%d\n", dbc.Host, dbc.Port)

	if err := db.CreateDatabase(adminDB, dbc.Name); err != nil {
		return err
	}
	fmt.Fprintf(out, "Database %s ready\n", dbc.Name)

	gormDB, err := db.Connect(dbc.Host, dbc.Port, dbc.User, dbc.Password, dbc.Name)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", dbc.Name, err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	fmt.Fprintln(out, "\nTelecare database initialized successfully.")
	return nil
}

func newDBResetCmd() *cobra.Command {
	var (
		configPath string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and re-initialize the Telecare database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBReset(cmd, configPath, yes)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "telecare.yaml", "path to Telecare config file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func runDBReset(cmd *cobra.Command, configPath string, skipConfirm bool) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dbc := cfg.Database

	if !skipConfirm {
		if !confirmReset(cmd, dbc.Name) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	adminDB, err := db.ConnectAdmin(dbc.Host, dbc.Port, dbc.User, dbc.Password)
	if err != nil {
		return fmt.Errorf("connect to MySQL at %s:%d: %w", dbc.Host, dbc.Port, err)
	}

	if err := db.DropDatabase(adminDB, dbc.Name); err != nil {
		return err
	}
	fmt.Fprintf(out, "Dropped database %s\n", dbc.Name)

	if err := db.CreateDatabase(adminDB, dbc.Name); err != nil {
		return err
	}
	gormDB, err := db.Connect(dbc.Host, dbc.Port, dbc.User, dbc.Password, dbc.Name)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", dbc.Name, err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nTelecare database reset successfully.")
	return nil
}

func confirmReset(cmd *cobra.Command, dbName string) bool {
	out := cmd.OutOrStdout()
	in := cmd.InOrStdin()

	fmt.Fprintf(out, "WARNING: This will permanently delete all data in database %q.\n", dbName)
	fmt.Fprintln(out, "This action cannot be undone.")
	fmt.Fprintln(out)
	fmt.Fprint(out, "Type \"yes\" to confirm: ")

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()) == "yes"
	}
	return false
}
