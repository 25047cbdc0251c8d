package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v2"
)

func newLookupCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <message-id>",
		Short: "Print the journaled delivery result for a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(g.configPath)
			if err != nil {
				return err
			}
			defer s.close()

			if s.journal == nil {
				return errNoJournal
			}
			res, err := s.journal.Lookup(args[0])
			if err != nil {
				return fmt.Errorf("no delivery recorded for %v: %w", args[0], err)
			}

			out, err := yaml.Marshal(res)
			if err != nil {
				return fmt.Errorf("can't print the delivery result: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
