package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v2"

	"github.com/hyurl/sfn-mail/email"
)

type sendFlags struct {
	subject     string
	from        string
	to          []string
	cc          []string
	bcc         []string
	text        string
	html        string
	attachments []string
	headers     []string
}

func newSendCommand(g *globals) *cobra.Command {
	f := &sendFlags{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one message",
		Long: `Send one message and print the delivery result as YAML.

Flags are applied on top of the message defaults from the config file.
Recipient flags add to the configured recipients.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			headers, err := parseHeaders(f.headers)
			if err != nil {
				return err
			}

			s, err := openSession(g.configPath)
			if err != nil {
				return err
			}
			defer s.close()

			var opts []email.Option
			if cmd.Flags().Changed("subject") {
				opts = append(opts, email.WithSubject(f.subject))
			}
			b := s.config.NewWithOptions(opts...)

			if f.from != "" {
				b.From(f.from)
			}
			b.To(f.to...).Cc(f.cc...).Bcc(f.bcc...)
			if f.text != "" {
				b.Text(f.text)
			}
			if f.html != "" {
				b.HTML(f.html)
			}
			for _, h := range headers {
				b.Header(h.Key, h.Value)
			}
			for _, a := range f.attachments {
				b.Attachment(a)
			}

			res, err := b.Send(cmd.Context())
			if err != nil {
				return err
			}

			out, err := yaml.Marshal(res)
			if err != nil {
				return fmt.Errorf("can't print the delivery result: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().StringVarP(&f.subject, "subject", "s", "", "message subject")
	cmd.Flags().StringVar(&f.from, "from", "", "sender address")
	cmd.Flags().StringSliceVar(&f.to, "to", nil, "recipient addresses (repeatable or comma separated)")
	cmd.Flags().StringSliceVar(&f.cc, "cc", nil, "carbon-copy addresses (repeatable or comma separated)")
	cmd.Flags().StringSliceVar(&f.bcc, "bcc", nil, "blind carbon-copy addresses (repeatable or comma separated)")
	cmd.Flags().StringVar(&f.text, "text", "", "plain-text body")
	cmd.Flags().StringVar(&f.html, "html", "", "HTML body")
	cmd.Flags().StringArrayVar(&f.attachments, "attach", nil, "path of a file to attach (repeatable)")
	cmd.Flags().StringArrayVar(&f.headers, "header", nil, "extra header as key=value (repeatable)")
	return cmd
}

func parseHeaders(kvs []string) ([]email.Header, error) {
	r := make([]email.Header, 0, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("headers must look like key=value, got %q", kv)
		}
		r = append(r, email.Header{Key: k, Value: strings.TrimSpace(v)})
	}
	return r, nil
}
