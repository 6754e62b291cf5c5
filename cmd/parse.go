package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/agenda-cultural-salvador/internal/caption"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/clock/system"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/events"
	"github.com/JakeFAU/agenda-cultural-salvador/internal/hash/sha256"
)

func newParseCmd() *cobra.Command {
	var postURL string
	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse an Instagram caption and print the events as JSON",
		Long: `Reads a caption from the given file, or from stdin when no file is
given, and prints the parsed events. Nothing is stored.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open caption: %w", err)
				}
				defer func() { _ = f.Close() }()
				in = f
			}
			text, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read caption: %w", err)
			}

			parser := caption.New(rt.cfg.Caption, sha256.New())
			records, err := parser.Parse(string(text), postURL, system.New().Now())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return caption.ErrNoEvents
			}
			payloads := make([]events.Payload, 0, len(records))
			for _, r := range records {
				payloads = append(payloads, r.Payload())
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(payloads)
		},
	}
	cmd.Flags().StringVar(&postURL, "url", "", "post URL recorded on each event")
	return cmd
}
