package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/RichardoC/portfolio-chat/internal/chat"
	"github.com/RichardoC/portfolio-chat/internal/suggest"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("FOLIO")
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:          "portfolio-chat-cli",
		Short:        "Talk to the portfolio assistant from a terminal",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := zap.NewNop()
			if v.GetBool("debug") {
				var err error
				if logger, err = zap.NewDevelopment(); err != nil {
					return err
				}
				defer logger.Sync()
			}

			out := cmd.OutOrStdout()
			p := &printer{out: out}
			conv := chat.New(
				chat.NewHTTPTransport(v.GetString("server"), nil),
				suggest.New(nil),
				chat.WithPage(v.GetString("page")),
				chat.WithMaxPromptChars(v.GetInt("max_prompt_chars")),
				chat.WithObserver(p.observe),
				chat.WithLogger(logger),
			)
			return newREPL(conv, out).run(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.String("server", "http://localhost:8100", "chat server base URL")
	flags.String("page", "home", "page the conversation starts on")
	flags.Int("max-prompt-chars", 1000, "longest message accepted")
	flags.Bool("debug", false, "log client events to stderr")
	_ = v.BindPFlag("server", flags.Lookup("server"))
	_ = v.BindPFlag("page", flags.Lookup("page"))
	_ = v.BindPFlag("max_prompt_chars", flags.Lookup("max-prompt-chars"))
	_ = v.BindPFlag("debug", flags.Lookup("debug"))
	return cmd
}
