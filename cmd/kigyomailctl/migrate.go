package main

import (
	"context"
	"fmt"

	"github.com/smallbiznis/kigyomail/internal/migration"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations (PostgreSQL only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				files, err := migration.Files()
				if err != nil {
					return err
				}
				for _, name := range files {
					fmt.Println(name)
				}
				return nil
			}

			// migration.Module applies the schema while the graph is built.
			return withApp(cmd.Context(), func(context.Context) error {
				fmt.Println("migrations up to date")
				return nil
			}, migration.Module)
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "list embedded migrations without applying them")
	return cmd
}
