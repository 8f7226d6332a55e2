package app

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/CenterForOpenScience/gravyvalet/pkg/logger"
)

const rotateBatchSize = 100

func newRotateEncryptionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rotate-encryption",
		Short: "Re-encrypt stored credentials under the current secret and parameters",
		Long: `Sweep all credential records and re-encrypt each one under the current
encryption secret and scrypt parameters. Run after changing
GRAVYVALET_ENCRYPT_SECRET (with the old secret listed in
GRAVYVALET_ENCRYPT_SECRET_PRIORS) or after raising the scrypt cost.`,
		RunE:         runRotateEncryption,
		SilenceUsage: true,
	}
	return cmd
}

func runRotateEncryption(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	// Updating a record bumps its modified time past the cutoff, so the
	// sweep converges even though it pages by modification time.
	cutoff := time.Now()
	rotated := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		records, err := rt.store.ListCredentialsModifiedBefore(ctx, cutoff, rotateBatchSize)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			break
		}
		progressed := 0
		for _, record := range records {
			blob, params, err := rt.encryptor.Rotate(record.EncryptedBlob, record.KeyParameters)
			if err != nil {
				logger.Warnf("rotating credentials %d: %v", record.ID, err)
				continue
			}
			record.EncryptedBlob = blob
			record.KeyParameters = params
			if err := rt.store.UpdateCredentials(ctx, record); err != nil {
				return err
			}
			rotated++
			progressed++
		}
		// A batch of nothing but undecryptable records would otherwise
		// repeat forever.
		if progressed == 0 {
			break
		}
	}
	logger.Infof("re-encrypted %d credential records", rotated)
	return nil
}
