package commands

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/petal-labs/onething/cli/keystore"
)

func (a *App) newKeysCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys",
		Long: `Manage API keys in the local encrypted keystore.

Commands read the key named by api_key_ref in the config ("onething" by
default) unless ONETHING_API_KEY is set.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set [name]",
		Short: "Store an API key",
		Long:  `Store an API key. The key is read without echo when stdin is a terminal.`,
		Args:  cobra.MaximumNArgs(1),
		RunE:  a.run(a.runKeysSet),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored key names",
		Long:  `List stored key names. Key values are never printed.`,
		Args:  cobra.NoArgs,
		RunE:  a.run(a.runKeysList),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete [name]",
		Short: "Delete a stored API key",
		Args:  cobra.MaximumNArgs(1),
		RunE:  a.run(a.runKeysDelete),
	})

	return cmd
}

func (a *App) keyName(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return a.cfg.KeyName()
}

func (a *App) runKeysSet(cmd *cobra.Command, args []string) error {
	name := a.keyName(args)

	fmt.Fprintf(a.stderr, "Enter API key for %s: ", name)
	apiKey, err := a.readSecret()
	if err != nil {
		return fmt.Errorf("failed to read key: %w", err)
	}
	if apiKey == "" {
		return validationf("API key cannot be empty")
	}

	ks, err := a.newKeystore()
	if err != nil {
		return fmt.Errorf("failed to open keystore: %w", err)
	}
	if err := ks.Set(name, apiKey); err != nil {
		return fmt.Errorf("failed to store key: %w", err)
	}

	if a.jsonOutput {
		return writeJSON(a.stdout, map[string]string{"stored": name})
	}
	fmt.Fprintf(a.stdout, "API key %s stored.\n", name)
	return nil
}

// readSecret reads one line from stdin, without echo when it is a terminal.
func (a *App) readSecret() (string, error) {
	if f, ok := a.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (a *App) runKeysList(cmd *cobra.Command, args []string) error {
	ks, err := a.newKeystore()
	if err != nil {
		return fmt.Errorf("failed to open keystore: %w", err)
	}

	names, err := ks.List()
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	if a.jsonOutput {
		if names == nil {
			names = []string{}
		}
		return writeJSON(a.stdout, map[string][]string{"keys": names})
	}
	if len(names) == 0 {
		fmt.Fprintln(a.stdout, "No API keys stored.")
		return nil
	}

	fmt.Fprintln(a.stdout, "Stored keys:")
	for _, name := range names {
		fmt.Fprintf(a.stdout, "  - %s\n", name)
	}
	return nil
}

func (a *App) runKeysDelete(cmd *cobra.Command, args []string) error {
	name := a.keyName(args)

	ks, err := a.newKeystore()
	if err != nil {
		return fmt.Errorf("failed to open keystore: %w", err)
	}
	if err := ks.Delete(name); err != nil {
		var nf *keystore.ErrKeyNotFound
		if errors.As(err, &nf) {
			return validationf("no key named %s", name)
		}
		return fmt.Errorf("failed to delete key: %w", err)
	}

	if a.jsonOutput {
		return writeJSON(a.stdout, map[string]string{"deleted": name})
	}
	fmt.Fprintf(a.stdout, "API key %s deleted.\n", name)
	return nil
}
