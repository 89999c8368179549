package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/vdfs4-unpacker/internal/datasource"
	"github.com/deploymenttheory/vdfs4-unpacker/internal/snapshot"
	"github.com/deploymenttheory/vdfs4-unpacker/internal/unpacker"
)

var unpackCmd = &cobra.Command{
	Use:   "unpack <image> <out-dir>",
	Short: "Unpack a VDFS4 image's directory tree and files to out-dir",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUnpack(args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(unpackCmd)
}

func runUnpack(imagePath, outDir string) error {
	f, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	ds := datasource.New(f)
	mgr, err := snapshot.Open(ds)
	if err != nil {
		return fmt.Errorf("read super blocks: %w", err)
	}
	if err := mgr.SelectCurrent(); err != nil {
		return fmt.Errorf("select base table: %w", err)
	}

	u, err := unpacker.New(mgr, unpacker.Options{
		ScratchThresholdBytes: currentConfig.ScratchThresholdBytes,
		ContinueOnError:       currentConfig.ContinueOnError,
	}, log)
	if err != nil {
		return fmt.Errorf("open catalog/extent trees: %w", err)
	}

	log.WithField("image", imagePath).WithField("out", outDir).Info("unpacking image")
	if err := u.Unpack(outDir); err != nil {
		return fmt.Errorf("unpack: %w", err)
	}
	log.Info("unpack complete")
	return nil
}
