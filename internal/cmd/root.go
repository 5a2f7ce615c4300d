// Package cmd implements ledgerctl, an offline tool that works directly on a
// snapshot file written by the file store.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"opsledger/backend/internal/domain"
	"opsledger/backend/internal/store"
	filestore "opsledger/backend/internal/store/file"
)

type options struct {
	file     string
	ledgerID string
	asJSON   bool
}

// NewRootCommand builds the ledgerctl command tree writing to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Inspect and operate on an operations ledger snapshot file",
		Long: `ledgerctl reads the JSON snapshot document kept by the file store
(SNAPSHOT_FILE) and prints figures, verifies cash balances or processes
parcel scans without a running server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(out)

	root.PersistentFlags().StringVar(&opts.file, "file", os.Getenv("SNAPSHOT_FILE"), "Snapshot JSON document (defaults to $SNAPSHOT_FILE)")
	root.PersistentFlags().StringVar(&opts.ledgerID, "ledger", "main", "Ledger id inside the document")
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "Print JSON instead of text")

	root.AddCommand(
		newSummaryCommand(opts),
		newVerifyCommand(opts),
		newScanCommand(opts),
		newReceivableCommand(opts),
	)
	return root
}

// Execute runs ledgerctl against os.Args.
func Execute() {
	if err := NewRootCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (o *options) store() (*filestore.Store, error) {
	if o.file == "" {
		return nil, errors.New("no snapshot file: pass --file or set SNAPSHOT_FILE")
	}
	return filestore.New(o.file), nil
}

func (o *options) load(ctx context.Context) (*filestore.Store, domain.Snapshot, error) {
	fs, err := o.store()
	if err != nil {
		return nil, domain.Snapshot{}, err
	}
	snapshot, err := fs.LoadSnapshot(ctx, o.ledgerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.Snapshot{}, fmt.Errorf("ledger %q not found in %s", o.ledgerID, o.file)
	}
	if err != nil {
		return nil, domain.Snapshot{}, fmt.Errorf("load %s: %w", o.file, err)
	}
	return fs, snapshot, nil
}
