package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/sealgate/internal/config"
	"github.com/aretw0/sealgate/internal/secrets"
	"github.com/aretw0/sealgate/pkg/adapters/postgres"
	"github.com/aretw0/sealgate/pkg/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var directoryCmd = &cobra.Command{
	Use:   "directory",
	Short: "Manage the postgres identity directory",
}

var directoryMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the directory tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := openDirectory(cmd)
		if err != nil {
			return err
		}
		defer dir.Close()

		if err := dir.AutoMigrate(cmd.Context()); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Directory schema is up to date")
		return nil
	},
}

var directoryAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a service, sealing its signing secret",
	Long: `Registers a service under a client. Without --secret a random 32-byte
secret is generated and printed once; it cannot be recovered later.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, generated, err := identityFromFlags(cmd)
		if err != nil {
			return err
		}
		dir, err := openDirectory(cmd)
		if err != nil {
			return err
		}
		defer dir.Close()

		if err := dir.AddService(cmd.Context(), id); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Registered service %s (%s) for client %s\n", id.UUID, id.ServiceName, id.ClientUUID)
		if generated {
			fmt.Fprintf(out, "Signing secret: %s\n", string(id.SigningSecret))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(directoryCmd)
	directoryCmd.AddCommand(directoryMigrateCmd)
	directoryCmd.AddCommand(directoryAddCmd)

	f := directoryAddCmd.Flags()
	f.String("uuid", "", "Service UUID (generated when empty)")
	f.String("client-uuid", "", "Client UUID")
	f.String("client-name", "", "Client name")
	f.String("service-name", "", "Service name")
	f.String("service-type", string(domain.ServiceTypeREST), "REST or PROXY")
	f.String("secret", "", "Signing secret (generated when empty)")
	f.StringSlice("roles", nil, "Roles granted to the service")
	f.Bool("inactive", false, "Register the service disabled")
	_ = directoryAddCmd.MarkFlagRequired("client-uuid")
	_ = directoryAddCmd.MarkFlagRequired("service-name")
}

func identityFromFlags(cmd *cobra.Command) (domain.ServiceIdentity, bool, error) {
	f := cmd.Flags()
	serviceUUID, _ := f.GetString("uuid")
	clientUUID, _ := f.GetString("client-uuid")
	clientName, _ := f.GetString("client-name")
	serviceName, _ := f.GetString("service-name")
	serviceType, _ := f.GetString("service-type")
	secret, _ := f.GetString("secret")
	roles, _ := f.GetStringSlice("roles")
	inactive, _ := f.GetBool("inactive")

	st := domain.ServiceType(strings.ToUpper(serviceType))
	if st != domain.ServiceTypeREST && st != domain.ServiceTypeProxy {
		return domain.ServiceIdentity{}, false, fmt.Errorf("unknown service type %q", serviceType)
	}
	if serviceUUID == "" {
		serviceUUID = uuid.NewString()
	}
	generated := false
	if secret == "" {
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return domain.ServiceIdentity{}, false, err
		}
		secret = hex.EncodeToString(raw)
		generated = true
	}
	return domain.ServiceIdentity{
		UUID:          serviceUUID,
		ClientUUID:    clientUUID,
		ClientName:    clientName,
		ServiceName:   serviceName,
		ServiceType:   st,
		SigningSecret: domain.Secret(secret),
		Active:        !inactive,
		Roles:         roles,
	}, generated, nil
}

func openDirectory(cmd *cobra.Command) (*postgres.Directory, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Directory.Driver != config.DirectoryPostgres {
		return nil, errors.New("directory commands require directory.driver: postgres")
	}
	src, err := cfg.Secrets.KeySource()
	if err != nil {
		return nil, err
	}
	sealer, err := secrets.Load(cmd.Context(), src)
	if err != nil {
		return nil, fmt.Errorf("load sealing keys: %w", err)
	}
	db, err := postgres.Open(cfg.Directory.DSN)
	if err != nil {
		return nil, err
	}
	return postgres.New(db, sealer), nil
}
