package cli

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trustgate/trustgate/internal/config"
	"github.com/trustgate/trustgate/internal/model"
	"github.com/trustgate/trustgate/internal/service"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage admin API keys",
		Long:    "Create, list, revoke, and check the API keys that authenticate against the admin API.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())
	cmd.AddCommand(newKeyCheckCmd())

	return cmd
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		name      string
		perms     []string
		expiresIn time.Duration
		ips       []string
		rateLimit int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Generate a new API key with the given permissions. The raw key is shown once and cannot be retrieved again.",
		Example: `  trustgate key create --name "CI deploy" --permissions manage_content
  trustgate key create --name ops --permissions manage_api_keys,view_audit_log --expires-in 720h
  trustgate key create --name office --permissions view_audit_log --allow-ip 10.0.0.1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(name, perms, expiresIn, ips, rateLimit)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Unique human-readable key name (required)")
	cmd.Flags().StringSliceVar(&perms, "permissions", nil, "Permissions to grant (required), e.g. manage_api_keys,view_audit_log")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "Key lifetime, e.g. 720h (default: never expires)")
	cmd.Flags().StringSliceVar(&ips, "allow-ip", nil, "Restrict the key to these caller IPs")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "Requests per minute for this key (0 = server default)")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("permissions")

	return cmd
}

func runKeyCreate(name string, permStrs []string, expiresIn time.Duration, ips []string, rateLimit int) error {
	perms, err := model.ParsePermissions(permStrs)
	if err != nil {
		return fmt.Errorf("%w (known: %s)", err, permissionNames())
	}

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	rawKey, keyHash, keyPrefix, err := service.GenerateKey()
	if err != nil {
		return err
	}

	key := &model.APIKey{
		KeyName:     name,
		KeyHash:     keyHash,
		KeyPrefix:   keyPrefix,
		Permissions: perms,
		IsActive:    true,
		IPAllowList: ips,
		RateLimit:   rateLimit,
		CreatedBy:   "cli",
	}
	if expiresIn > 0 {
		exp := time.Now().Add(expiresIn)
		key.ExpiresAt = &exp
	}

	if err := store.CreateKey(context.Background(), key); err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	fmt.Println("API key created:")
	fmt.Println()
	fmt.Printf("  Key:         %s\n", rawKey)
	fmt.Printf("  Name:        %s\n", name)
	fmt.Printf("  Permissions: %s\n", strings.Join(permStrs, ", "))
	if key.ExpiresAt != nil {
		fmt.Printf("  Expires:     %s\n", key.ExpiresAt.Format(time.RFC3339))
	}
	if len(ips) > 0 {
		fmt.Printf("  Allowed IPs: %s\n", strings.Join(ips, ", "))
	}
	fmt.Println()
	fmt.Println("  Save this key now - it cannot be retrieved again.")
	return nil
}

func permissionNames() string {
	names := make([]string, len(model.AllPermissions))
	for i, p := range model.AllPermissions {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(jsonOutput bool) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	keys, err := store.ListKeys(context.Background())
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(keys)
	}

	if len(keys) == 0 {
		fmt.Println("No API keys configured. Use 'trustgate key create' to create one.")
		return nil
	}

	fmt.Printf("%-10s %-24s %-8s %-8s %-10s\n", "PREFIX", "NAME", "ACTIVE", "USES", "EXPIRES")
	fmt.Printf("%-10s %-24s %-8s %-8s %-10s\n", "------", "----", "------", "----", "-------")
	for _, k := range keys {
		active := "yes"
		if !k.IsActive {
			active = "no"
		}
		expires := "never"
		if k.ExpiresAt != nil {
			expires = k.ExpiresAt.Format("2006-01-02")
		}
		fmt.Printf("%-10s %-24s %-8s %-8d %-10s\n", k.KeyPrefix, k.KeyName, active, k.UsageCount, expires)
	}

	return nil
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <prefix>",
		Short: "Revoke an API key by its prefix",
		Long:  "Deactivate an API key. Revocation is terminal; rotate or create a new key to restore access.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(args[0])
		},
	}

	return cmd
}

func runKeyRevoke(prefix string) error {
	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	if err := store.RevokeKey(context.Background(), prefix); err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return fmt.Errorf("no active API key with prefix %q", prefix)
		}
		return fmt.Errorf("revoke api key: %w", err)
	}

	fmt.Printf("Revoked API key with prefix %q\n", prefix)
	return nil
}

// ---------- key check ----------

func newKeyCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a raw key matches an active record",
		Long:  "Prompts for a raw key (input hidden) and reports whether it would be admitted. The key is never echoed or stored.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCheck()
		},
	}

	return cmd
}

func runKeyCheck() error {
	fmt.Print("Raw key: ")
	keyBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("read key: %w", err)
	}
	rawKey := strings.TrimSpace(string(keyBytes))
	if len(rawKey) < service.KeyPrefixLen {
		return fmt.Errorf("key too short")
	}

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	key, err := store.GetKeyByPrefix(context.Background(), rawKey[:service.KeyPrefixLen])
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			fmt.Println("No key record matches this prefix.")
			return nil
		}
		return fmt.Errorf("lookup: %w", err)
	}

	candidate := config.HashKey(rawKey)
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(key.KeyHash)) != 1 {
		fmt.Printf("Prefix matches %q but the key itself does not.\n", key.KeyName)
		return nil
	}

	fmt.Printf("Key matches %q\n", key.KeyName)
	switch {
	case !key.IsActive:
		fmt.Println("  Status: REVOKED - this key will be rejected.")
	case key.ExpiredAt(time.Now()):
		fmt.Printf("  Status: EXPIRED at %s - this key will be rejected.\n", key.ExpiresAt.Format(time.RFC3339))
	default:
		fmt.Println("  Status: active")
	}
	return nil
}
