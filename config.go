package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	dataDir        string
	intermission   time.Duration
	maxPlayers     int
	port           int
	prefix         string
	profile        bool
	promptTimeout  time.Duration
	scoreAPI       string
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	totalRounds    int
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.maxPlayers < 1 {
		return fmt.Errorf("invalid player cap (must be at least 1): %d", c.maxPlayers)
	}
	if c.totalRounds < 1 {
		return fmt.Errorf("invalid round count (must be at least 1): %d", c.totalRounds)
	}
	if c.promptTimeout < time.Second {
		return fmt.Errorf("invalid prompt timeout (must be at least 1s): %s", c.promptTimeout)
	}
	if c.intermission < time.Second {
		return fmt.Errorf("invalid intermission (must be at least 1s): %s", c.intermission)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("JEOPROMPTY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "jeoprompty",
		Short:         "A realtime party-trivia room server, where prompts do the guessing.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: JEOPROMPTY_BIND)")
	fs.StringVar(&cfg.dataDir, "data-dir", ".", "directory holding the room state database (env: JEOPROMPTY_DATA_DIR)")
	fs.DurationVar(&cfg.intermission, "intermission", 8*time.Second, "pause between rounds (env: JEOPROMPTY_INTERMISSION)")
	fs.IntVar(&cfg.maxPlayers, "max-players", 12, "player cap per room (env: JEOPROMPTY_MAX_PLAYERS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: JEOPROMPTY_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: JEOPROMPTY_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: JEOPROMPTY_PROFILE)")
	fs.DurationVar(&cfg.promptTimeout, "prompt-timeout", 60*time.Second, "time players have to write a prompt each round (env: JEOPROMPTY_PROMPT_TIMEOUT)")
	fs.StringVar(&cfg.scoreAPI, "score-api", "", "base URL of the external scoring service (env: JEOPROMPTY_SCORE_API)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle rooms are unloaded (env: JEOPROMPTY_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: JEOPROMPTY_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: JEOPROMPTY_TLS_KEY)")
	fs.IntVar(&cfg.totalRounds, "total-rounds", 10, "rounds per game (env: JEOPROMPTY_TOTAL_ROUNDS)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: JEOPROMPTY_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: JEOPROMPTY_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("jeoprompty v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
