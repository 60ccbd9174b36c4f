package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cacheAdapter "go-chatty-client/internal/infrastructure/cache/adapter"
	"go-chatty-client/internal/infrastructure/auth"
	"go-chatty-client/internal/infrastructure/config"
	"go-chatty-client/internal/infrastructure/logger"
	repoAdapter "go-chatty-client/internal/pkg/chat/persistence/repository/adapter"
	repository "go-chatty-client/internal/pkg/chat/persistence/repository/port"
	"go-chatty-client/internal/pkg/chat/presentation/console"
)

var (
	version = "dev"
	commit  = "unknown"
)

// app is what every command runs against, built once the flags are parsed.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	tokens   auth.TokenSource
	repo     repository.ChatRepository
	renderer *console.Renderer
	closers  []io.Closer
}

// close releases what init opened. It runs once per command, whether RunE
// failed or not.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
	a.closers = nil
	if a.log != nil {
		_ = a.log.Sync()
	}
}

// closeAfterRun wraps every RunE below c so that the app is closed on error
// paths too; cobra skips post-run hooks when RunE fails.
func (a *app) closeAfterRun(c *cobra.Command) {
	for _, sub := range c.Commands() {
		if run := sub.RunE; run != nil {
			sub.RunE = func(cmd *cobra.Command, args []string) error {
				defer a.close()
				return run(cmd, args)
			}
		}
		a.closeAfterRun(sub)
	}
}

type rootOptions struct {
	configFile string
	envFile    string
	verbose    bool
}

// NewRootCommand builds the chatctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	a := &app{}

	root := &cobra.Command{
		Use:   "chatctl",
		Short: "Command line client for the conversation service",
		Long: `chatctl lists conversations and users, sends messages and opens a
conversation live, falling back to polling while the socket is down.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file path (default is ./chatctl.yaml)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file to load (default is ./.env)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newConversationsCommand(a),
		newUsersCommand(a),
		newHistoryCommand(a),
		newCreateCommand(a),
		newSendCommand(a),
		newOpenCommand(a),
		newScheduleCommand(a),
		newWorkerCommand(a),
		newArchiveCommand(a),
		newLoginCommand(a),
	)
	a.closeAfterRun(root)
	return root
}

// Execute runs chatctl. This is called by main.main().
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) init(ctx context.Context, opts *rootOptions, out io.Writer) error {
	cfg, err := config.Load(config.Options{ConfigFile: opts.configFile, EnvFile: opts.envFile})
	if err != nil {
		return err
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: logger.DefaultConfig().TimeFormat,
	})
	if err != nil {
		return err
	}

	tokens, err := auth.Resolve(cfg.Auth.Token, cfg.Auth.TokenFile)
	if err != nil {
		return err
	}

	httpRepo, err := repoAdapter.NewHTTPChatRepository(cfg.API.BaseURL, tokens, nil, cfg.API.Timeout, logger.Named(log, "api"))
	if err != nil {
		return err
	}

	a.cfg, a.log, a.tokens = cfg, log, tokens
	a.repo = httpRepo
	a.renderer = console.NewRenderer(out, cfg.UI.Username)

	if cfg.Cache.RedisURL != "" {
		c, err := cacheAdapter.NewRedisCache(ctx, cfg.Cache.RedisURL, "chatctl:")
		if err != nil {
			// the cache only serves as a fallback
			log.Warn("list cache unavailable", zap.Error(err))
		} else {
			a.closers = append(a.closers, c)
			scope := repoAdapter.CacheScope(cfg.API.BaseURL, tokens.Token())
			a.repo = repoAdapter.NewCachedChatRepository(httpRepo, c, scope, cfg.Cache.TTL, logger.Named(log, "cache"))
		}
	}
	return nil
}
