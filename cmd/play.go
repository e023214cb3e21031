package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/castaway-tv/castaway/internal/config"
	"github.com/castaway-tv/castaway/internal/player"
	"github.com/castaway-tv/castaway/internal/session"
	"github.com/castaway-tv/castaway/internal/store"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	playMediaID   string
	playVideoID   string
	playTitle     string
	playMediaType string
	playNextURL   string
	playNextVideo string
	playNextTitle string
	playBackends  []string
	playLogFile   string
	playLogLevel  string
	playDataDir   string
)

// playCmd represents the play command
var playCmd = &cobra.Command{
	Use:   "play URL",
	Short: "Play a stream with fallback, resume and up-next handling",
	Long: `Play a stream URL through the configured backend chain.

Playback resumes from the stored position for the given media id, is
persisted on an interval so it survives crashes, and falls back to the
next backend automatically when the current one fails with a
recoverable (codec/unknown) error. With --next-url set, finishing the
stream auto-advances to the next one within the session retry budget.

Exit is graceful on SIGINT/SIGTERM; a second signal forces exit.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().StringVar(&playMediaID, "media", "", "Media id used for progress records (default: the URL)")
	playCmd.Flags().StringVar(&playVideoID, "video", "", "Episode/video id (empty for movies)")
	playCmd.Flags().StringVar(&playTitle, "title", "", "Display title")
	playCmd.Flags().StringVar(&playMediaType, "type", "movie", "Media type (movie or series)")
	playCmd.Flags().StringVar(&playNextURL, "next-url", "", "URL of the next episode for up-next/auto-play")
	playCmd.Flags().StringVar(&playNextVideo, "next-video", "", "Video id of the next episode")
	playCmd.Flags().StringVar(&playNextTitle, "next-title", "", "Title of the next episode")
	playCmd.Flags().StringSliceVar(&playBackends, "backend", nil, "Backend preference order (overrides config)")
	playCmd.Flags().StringVar(&playLogFile, "log-file", "", "Log file path (default: stderr)")
	playCmd.Flags().StringVar(&playLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	playCmd.Flags().StringVar(&playDataDir, "data-dir", "", "Data directory for the progress database")
}

// chainNavigator remembers where the session wants to go so the play
// loop can chain auto-advances
type chainNavigator struct {
	log    zerolog.Logger
	target *session.NavTarget
}

func (n *chainNavigator) ExitPlayback(ctx context.Context, target session.NavTarget) error {
	n.target = &target
	n.log.Info().
		Str("media", target.MediaID).
		Str("video", target.VideoID).
		Bool("autoplay", target.AutoPlay).
		Msg("Exiting playback")
	return nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(playLogFile, playLogLevel)

	settings := cfg.Settings()
	if len(playBackends) > 0 {
		settings.Backends = playBackends
	}

	dataDir := playDataDir
	if dataDir == "" {
		dataDir = cfg.DataDir
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	st, err := store.NewSQLite(filepath.Join(dataDir, "progress.db"))
	if err != nil {
		return fmt.Errorf("failed to open progress store: %w", err)
	}
	defer st.Close()

	if retention := cfg.Retention(); retention > 0 {
		if n, err := st.DeleteFinished(context.Background(), retention); err != nil {
			logger.Warn().Err(err).Msg("Failed to prune finished records")
		} else if n > 0 {
			logger.Debug().Int64("records", n).Msg("Pruned old finished records")
		}
	}

	mediaType := session.Movie
	if playMediaType == "series" {
		mediaType = session.Series
	}

	mediaID := playMediaID
	if mediaID == "" {
		mediaID = args[0]
	}
	title := playTitle
	if title == "" {
		title = mediaID
	}

	params := session.Params{
		MediaID: mediaID,
		VideoID: playVideoID,
		Type:    mediaType,
		Source: player.Source{
			URL:     args[0],
			Title:   title,
			MediaID: mediaID,
			VideoID: playVideoID,
		},
	}
	if playNextURL != "" {
		params.UpNext = &session.UpNextTarget{
			MediaID: playNextURL,
			VideoID: playNextVideo,
			Title:   playNextTitle,
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	opts := cfg.PlayerOptions()
	nav := &chainNavigator{log: logger}

	// First signal stops the active session gracefully, second forces exit
	var active struct {
		sync.Mutex
		ctrl *session.Controller
	}
	go func() {
		<-sigChan
		logger.Info().Msg("Shutdown signal received, stopping playback")
		active.Lock()
		if active.ctrl != nil {
			active.ctrl.Stop()
		}
		active.Unlock()
		cancel()
		<-sigChan
		logger.Warn().Msg("Second shutdown signal received, forcing exit")
		os.Exit(1)
	}()

	for {
		ctrl := session.New(session.Config{
			Settings:  settings,
			Store:     st,
			Navigator: nav,
			Hooks: session.Hooks{
				OnTerminalError: func(msg string) {
					fmt.Fprintln(os.Stderr, msg)
				},
				OnUpNext: func(state session.UpNextState, target *session.UpNextTarget) {
					if state == session.UpNextActive && target != nil {
						logger.Info().Str("title", target.Title).Msg("Up next")
					}
				},
			},
			OpenBackend: func(name string) (player.Engine, error) {
				return player.Open(name, opts)
			},
			Logger: logger,
		})

		active.Lock()
		active.ctrl = ctrl
		active.Unlock()

		err := ctrl.Run(ctx, params)
		if err != nil {
			if errors.Is(err, session.ErrPlaybackFailed) {
				return err
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		// Chain into the next episode only when the scheduler chose
		// to auto-advance and we actually know its URL
		next := nav.target
		if next == nil || !next.AutoPlay || next.MediaID == "" {
			return nil
		}
		logger.Info().Str("url", next.MediaID).Msg("Auto-advancing to next episode")
		params = session.Params{
			MediaID: next.MediaID,
			VideoID: next.VideoID,
			Type:    next.Type,
			Source: player.Source{
				URL:     next.MediaID,
				Title:   playNextTitle,
				MediaID: next.MediaID,
				VideoID: next.VideoID,
			},
		}
		nav.target = nil
	}
}
