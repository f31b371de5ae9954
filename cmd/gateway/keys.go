package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/careconnect/data-gateway/internal/apikey"
	"github.com/careconnect/data-gateway/internal/audit"
	"github.com/careconnect/data-gateway/internal/config"
	"github.com/careconnect/data-gateway/internal/database"
)

var (
	keysEnvFile        string
	keysDBPath         string
	issueName          string
	issueOrganization  string
	issuePermissions   []string
	issueTierOverride  string
	issueExpirationDay int
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API credentials without a running server",
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List credentials with obfuscated secrets",
	RunE:  runKeysList,
}

var keysIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a new API credential",
	Long: `Issue a credential directly against the database. The full secret is
printed once; only the obfuscated form is recoverable afterwards.`,
	RunE: runKeysIssue,
}

func init() {
	for _, cmd := range []*cobra.Command{keysListCmd, keysIssueCmd} {
		cmd.Flags().StringVar(&keysEnvFile, "env", ".env", "Path to .env file")
		cmd.Flags().StringVar(&keysDBPath, "db", "", "Path to SQLite database (overrides env var)")
	}
	keysIssueCmd.Flags().StringVar(&issueName, "name", "", "Credential name (required)")
	keysIssueCmd.Flags().StringVar(&issueOrganization, "organization", "", "Owning organization (required)")
	keysIssueCmd.Flags().StringSliceVar(&issuePermissions, "permission", nil, "Permission token, repeatable (e.g. read:volunteers)")
	keysIssueCmd.Flags().StringVar(&issueTierOverride, "tier", "", "Tier override (basic, standard, premium, enterprise)")
	keysIssueCmd.Flags().IntVar(&issueExpirationDay, "expires-in-days", 0, "Days until expiry (0 for no expiry)")

	keysCmd.AddCommand(keysListCmd, keysIssueCmd)
}

func openKeysDB() (*database.DB, error) {
	_ = godotenv.Load(keysEnvFile)

	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if keysDBPath != "" {
		cfg.DatabasePath = keysDBPath
	}

	return database.New(database.Config{
		Path:            cfg.DatabasePath,
		MaxOpenConns:    cfg.DatabasePoolSize,
		MaxIdleConns:    cfg.DatabasePoolSize / 2,
		ConnMaxLifetime: time.Hour,
	})
}

func runKeysList(cmd *cobra.Command, args []string) error {
	db, err := openKeysDB()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	creds, err := db.List(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	for _, cred := range creds {
		fmt.Printf("%s  %-24s  %-10s  %-10s  %s\n",
			cred.ID,
			apikey.ObfuscateKey(cred.Key),
			cred.EffectiveStatus(),
			apikey.ResolveTier(&cred),
			cred.Organization)
	}
	fmt.Printf("%d credential(s)\n", len(creds))
	return nil
}

func runKeysIssue(cmd *cobra.Command, args []string) error {
	if issueName == "" || issueOrganization == "" {
		return fmt.Errorf("--name and --organization are required")
	}

	db, err := openKeysDB()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	recorder := audit.NewRecorder(zap.NewNop(), 2*time.Second, db)
	manager := apikey.NewManager(db, recorder)

	permissions := make([]apikey.Permission, len(issuePermissions))
	for i, p := range issuePermissions {
		permissions[i] = apikey.Permission(p)
	}

	opts := apikey.IssueOptions{
		Name:         issueName,
		Organization: issueOrganization,
		Permissions:  permissions,
		TierOverride: apikey.Tier(issueTierOverride),
	}
	if issueExpirationDay > 0 {
		opts.Expiration = time.Duration(issueExpirationDay) * 24 * time.Hour
	}

	cred, err := manager.Issue(context.Background(), apikey.Actor{ID: "cli"}, opts)
	if err != nil {
		return fmt.Errorf("failed to issue key: %w", err)
	}
	recorder.Wait()

	fmt.Printf("id:           %s\n", cred.ID)
	fmt.Printf("key:          %s\n", cred.Key)
	fmt.Printf("organization: %s\n", cred.Organization)
	fmt.Printf("tier:         %s\n", apikey.ResolveTier(&cred))
	if len(cred.Permissions) > 0 {
		tokens := make([]string, len(cred.Permissions))
		for i, p := range cred.Permissions {
			tokens[i] = string(p)
		}
		fmt.Printf("permissions:  %s\n", strings.Join(tokens, ", "))
	}
	if cred.ExpiresAt != nil {
		fmt.Printf("expires:      %s\n", cred.ExpiresAt.UTC().Format(time.RFC3339))
	}
	fmt.Println("Store the key now; it is not shown again.")
	return nil
}
