package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"identity-service/internal/auth"
	"identity-service/internal/auth/store"
	"identity-service/internal/config"
	"identity-service/internal/db"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// newRootCmd builds the operator CLI. Database settings come from flags or,
// when unset, from DATABASE_DRIVER / DATABASE_DSN.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "identityctl",
		Short:         "Inspect and maintain the identity store",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String("driver", "", "database driver (postgres, sqlite)")
	root.PersistentFlags().String("dsn", "", "database DSN")
	root.PersistentFlags().StringP("output", "o", "table", "output format (table, json, yaml)")

	root.AddCommand(
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the schema migration",
			Args:  cobra.NoArgs,
			RunE:  runMigrate,
		},
		&cobra.Command{
			Use:   "account <email>",
			Short: "Show the account registered under an email",
			Long: `Look up an account by email (case-insensitive).

Examples:
  identityctl account alice@example.com
  identityctl --driver sqlite --dsn ./identity.db account alice@example.com`,
			Args: cobra.ExactArgs(1),
			RunE: runAccount,
		},
		&cobra.Command{
			Use:   "identities <email>",
			Short: "List provider identities linked to an account",
			Args:  cobra.ExactArgs(1),
			RunE:  runIdentities,
		},
	)
	return root
}

func openDB(cmd *cobra.Command) (*db.DB, error) {
	driver, _ := cmd.Flags().GetString("driver")
	dsn, _ := cmd.Flags().GetString("dsn")

	settings, err := config.LoadDatabase()
	if err != nil {
		return nil, err
	}
	if driver != "" {
		settings.Driver = driver
	}
	if dsn != "" {
		settings.DSN = dsn
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	dialect, err := db.ParseDialect(settings.Driver)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	return db.Open(ctx, dialect, settings.DSN)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	d, err := openDB(cmd)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer d.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", d.Dialect)
	return nil
}

func findAccount(cmd *cobra.Command, email string) (*store.Store, *auth.Account, func(), error) {
	d, err := openDB(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	s := store.New(d)
	account, err := s.FindAccountByEmail(cmd.Context(), email)
	if errors.Is(err, auth.ErrNotFound) {
		_ = d.Close()
		return nil, nil, nil, fmt.Errorf("no account for %s", auth.NormalizeEmail(email))
	}
	if err != nil {
		_ = d.Close()
		return nil, nil, nil, err
	}
	return s, account, func() { _ = d.Close() }, nil
}

type identityView struct {
	Provider string    `json:"provider" yaml:"provider"`
	UID      string    `json:"uid" yaml:"uid"`
	LinkedAt time.Time `json:"linked_at" yaml:"linked_at"`
}

type accountView struct {
	ID          string         `json:"id" yaml:"id"`
	Email       string         `json:"email" yaml:"email"`
	DisplayName string         `json:"display_name" yaml:"display_name"`
	ConfirmedAt *time.Time     `json:"confirmed_at" yaml:"confirmed_at"`
	CreatedAt   time.Time      `json:"created_at" yaml:"created_at"`
	Identities  []identityView `json:"identities,omitempty" yaml:"identities,omitempty"`
}

// encode writes v as json or yaml. It returns false for the table format.
func encode(cmd *cobra.Command, v any) (bool, error) {
	format, _ := cmd.Flags().GetString("output")
	out := cmd.OutOrStdout()

	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	case "table", "":
		return false, nil
	default:
		return true, fmt.Errorf("unknown output format %q", format)
	}
}

func runAccount(cmd *cobra.Command, args []string) error {
	_, account, done, err := findAccount(cmd, args[0])
	if err != nil {
		return err
	}
	defer done()

	view := accountView{
		ID:          account.ID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
		ConfirmedAt: account.ConfirmedAt,
		CreatedAt:   account.CreatedAt.UTC(),
	}
	if handled, err := encode(cmd, view); handled {
		return err
	}

	confirmed := "no"
	if account.ConfirmedAt != nil {
		confirmed = account.ConfirmedAt.UTC().Format(time.RFC3339)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "id\t%s\n", account.ID)
	fmt.Fprintf(w, "email\t%s\n", account.Email)
	fmt.Fprintf(w, "name\t%s\n", account.DisplayName)
	fmt.Fprintf(w, "confirmed\t%s\n", confirmed)
	fmt.Fprintf(w, "created\t%s\n", account.CreatedAt.UTC().Format(time.RFC3339))
	return w.Flush()
}

func runIdentities(cmd *cobra.Command, args []string) error {
	s, account, done, err := findAccount(cmd, args[0])
	if err != nil {
		return err
	}
	defer done()

	identities, err := s.ListIdentities(cmd.Context(), account.ID)
	if err != nil {
		return err
	}

	views := make([]identityView, 0, len(identities))
	for _, i := range identities {
		views = append(views, identityView{Provider: i.Provider, UID: i.UID, LinkedAt: i.CreatedAt.UTC()})
	}
	if handled, err := encode(cmd, views); handled {
		return err
	}

	if len(views) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s has no linked identities\n", account.Email)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tUID\tLINKED")
	for _, v := range views {
		fmt.Fprintf(w, "%s\t%s\t%s\n", v.Provider, v.UID, v.LinkedAt.Format(time.RFC3339))
	}
	return w.Flush()
}
