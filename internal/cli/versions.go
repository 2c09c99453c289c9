package cli

import (
	"github.com/spf13/cobra"
)

// VersionInfo describes one registered rule set.
type VersionInfo struct {
	Version     string `json:"version"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Digest      string `json:"digest"`
}

// NewVersionsCommand creates the versions command.
func NewVersionsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "versions",
		Short:         "List registered rule-set versions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersions(rootOpts, cmd)
		},
	}
	return cmd
}

func runVersions(opts *RootOptions, cmd *cobra.Command) error {
	reg := BuiltinRegistry()

	var infos []VersionInfo
	for _, v := range reg.ListVersions() {
		set, err := reg.Get(v)
		if err != nil {
			return err
		}
		infos = append(infos, VersionInfo{
			Version:     v.String(),
			Name:        set.Metadata().Name,
			Description: set.Metadata().Description,
			Digest:      set.MetadataDigest().String(),
		})
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if opts.Format == "json" {
		return out.JSON(infos)
	}
	for _, info := range infos {
		out.Textf("%-8s %-12s %s", info.Version, info.Name, info.Description)
	}
	return nil
}
