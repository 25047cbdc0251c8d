// Package cli is the sfn-mail command tree.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hyurl/sfn-mail/email"
	"github.com/hyurl/sfn-mail/storage"
	"github.com/hyurl/sfn-mail/userconfig"
)

// globals are the flags shared by every command.
type globals struct {
	configPath string
	level      string
}

// NewRootCommand returns the root command with its subcommands attached.
func NewRootCommand() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "sfn-mail",
		Short: "Send email through an SMTP server",
		Long: `sfn-mail composes messages and hands them to an SMTP server.

Connection settings and message defaults come from an optional YAML
config file. When the file has a journal section, every delivery result
is kept and can be looked up later by message id.

Example:
  sfn-mail --config mail.yaml send --subject Hi --to a@example.com --text hello
  sfn-mail --config mail.yaml lookup '<id@example.com>'`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setLevel(g.level)
		},
	}

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to a YAML file with transport and message defaults")
	root.PersistentFlags().StringVar(&g.level, "level", "info", `log level: "info", "debug", or "warn"`)

	root.AddCommand(newSendCommand(g))
	root.AddCommand(newLookupCommand(g))
	return root
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

func setLevel(level string) {
	switch level {
	case "debug":
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	case "warn":
		log.Logger = log.Logger.Level(zerolog.WarnLevel)
	default:
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}
}

// session is what a command needs to send or look up messages. Call close
// when done so the journal's lock is released.
type session struct {
	config  *email.Config
	journal *email.Journal
	db      storage.KeyValue
}

func (s *session) close() {
	if err := s.config.Pool().Close(); err != nil {
		log.Warn().Err(err).Msg("problem closing pooled connections")
	}
	if err := s.db.Cleanup(); err != nil {
		log.Debug().Err(err).Msg("journal cleanup failed")
	}
	if err := s.db.Close(); err != nil {
		log.Warn().Err(err).Msg("problem closing the journal")
	}
}

// openSession builds an email.Config from the file at path. An empty path
// means built-in defaults and no journal. Without a journal, db is a no-op
// database.
func openSession(path string) (*session, error) {
	s := &session{config: email.NewConfig(), db: &storage.NoOpDB{}}
	if path == "" {
		return s, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("can't open the config file: %w", err)
	}
	defer f.Close()

	meta, err := userconfig.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("problem parsing your config: %w", err)
	}
	checked, err := meta.CheckAndSetDefaults()
	if err != nil {
		return nil, fmt.Errorf("problem validating your config: %w", err)
	}
	if err := s.config.Merge(checked.Options()); err != nil {
		return nil, err
	}
	log.Debug().Str("configPath", path).Msg("successfully validated the config")

	if checked.Journal != nil {
		db, err := storage.NewBadgerDB(checked.Journal)
		if err != nil {
			return nil, fmt.Errorf("can't open the journal: %w", err)
		}
		s.db = db
		s.journal = email.NewJournal(db)
		s.config.SetJournal(s.journal)
	}
	return s, nil
}

var errNoJournal = errors.New("the config file has no journal section")
