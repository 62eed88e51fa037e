package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/sealgate"
	"github.com/aretw0/sealgate/internal/logging"
	"github.com/aretw0/sealgate/pkg/domain"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or remove stored container sessions",
	Long: `Reads the configured session store directly. Sessions are addressed by the
owning service UUID and the container id, exactly as the gateway keys them.`,
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <container-id>",
	Short: "Print a stored session as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gw, owner, err := openSessions(cmd)
		if err != nil {
			return err
		}
		defer gw.Close()

		key := gw.Sessions.Key(owner, args[0])
		sess, err := gw.Sessions.Store().Get(cmd.Context(), key)
		if err != nil {
			return fmt.Errorf("session %s: %w", key, err)
		}
		data, err := json.MarshalIndent(sess, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <container-id>...",
	Short: "Remove one or more sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gw, owner, err := openSessions(cmd)
		if err != nil {
			return err
		}
		defer gw.Close()

		failed := 0
		for _, id := range args {
			key := gw.Sessions.Key(owner, id)
			if err := gw.Sessions.Store().Delete(cmd.Context(), key); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error removing '%s': %v\n", id, err)
				failed++
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed session '%s'\n", key)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d sessions not removed", failed, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionRmCmd)
	sessionCmd.PersistentFlags().String("service-uuid", "", "Owning service UUID")
	_ = sessionCmd.MarkPersistentFlagRequired("service-uuid")
}

func openSessions(cmd *cobra.Command) (*sealgate.Gateway, domain.AuthenticatedIdentity, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, domain.AuthenticatedIdentity{}, err
	}
	serviceUUID, _ := cmd.Flags().GetString("service-uuid")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	gw, err := sealgate.New(ctx, cfg, sealgate.WithLogger(logging.NewNop()))
	if err != nil {
		return nil, domain.AuthenticatedIdentity{}, err
	}
	return gw, domain.AuthenticatedIdentity{ServiceUUID: serviceUUID}, nil
}
