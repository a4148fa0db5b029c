package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/jwkgate/internal/credentials"
)

func newUsersCmd() *cobra.Command {
	users := &cobra.Command{Use: "users", Short: "Directorio de usuarios de dev"}
	users.AddCommand(&cobra.Command{
		Use:   "hash-password [password]",
		Short: "Genera el password_hash (bcrypt) para la sección users del config",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pw string
			if len(args) == 1 {
				pw = args[0]
			} else {
				// sin argumento se lee de stdin para no dejarlo en el history
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				pw = strings.TrimRight(line, "\r\n")
			}
			if pw == "" {
				return errors.New("password vacío")
			}
			h, err := credentials.HashPassword(pw)
			if err != nil {
				return err
			}
			fmt.Println(h)
			return nil
		},
	})
	return users
}
