package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/castaway-tv/castaway/internal/config"
	"github.com/castaway-tv/castaway/internal/player"
	"github.com/castaway-tv/castaway/internal/session"
	"github.com/castaway-tv/castaway/internal/store"
	"github.com/castaway-tv/castaway/internal/tui"
	"github.com/spf13/cobra"
)

var (
	tuiMediaID   string
	tuiVideoID   string
	tuiTitle     string
	tuiMediaType string
	tuiDataDir   string
	tuiLogFile   string
)

// tuiCmd represents the tui command
var tuiCmd = &cobra.Command{
	Use:   "tui URL",
	Short: "Play a stream with a remote-control terminal UI",
	Long: `Play a stream URL with a terminal UI that behaves like a TV remote:
left/right arrows are seek pulses (hold for accelerated seeking),
space toggles pause, n accepts the up-next prompt, q quits.

Because pulses go through the seek coordinator, holding an arrow key
issues a single combined seek rather than one per keypress.`,
	Args: cobra.ExactArgs(1),
	RunE: runTUICmd,
}

func init() {
	rootCmd.AddCommand(tuiCmd)

	tuiCmd.Flags().StringVar(&tuiMediaID, "media", "", "Media id used for progress records (default: the URL)")
	tuiCmd.Flags().StringVar(&tuiVideoID, "video", "", "Episode/video id (empty for movies)")
	tuiCmd.Flags().StringVar(&tuiTitle, "title", "", "Display title")
	tuiCmd.Flags().StringVar(&tuiMediaType, "type", "movie", "Media type (movie or series)")
	tuiCmd.Flags().StringVar(&tuiDataDir, "data-dir", "", "Data directory for the progress database")
	tuiCmd.Flags().StringVar(&tuiLogFile, "log-file", "", "Log file path (default: discarded while the TUI runs)")
}

func runTUICmd(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Logs would fight the TUI for the terminal, so they are dropped
	// unless a file is given
	logFile := tuiLogFile
	if logFile == "" {
		logFile = os.DevNull
	}
	logger := setupLogger(logFile, "info")

	dataDir := tuiDataDir
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

	mediaType := session.Movie
	if tuiMediaType == "series" {
		mediaType = session.Series
	}
	mediaID := tuiMediaID
	if mediaID == "" {
		mediaID = args[0]
	}
	title := tuiTitle
	if title == "" {
		title = mediaID
	}

	opts := cfg.PlayerOptions()
	ctrl := session.New(session.Config{
		Settings: cfg.Settings(),
		Store:    st,
		OpenBackend: func(name string) (player.Engine, error) {
			return player.Open(name, opts)
		},
		Logger: logger,
	})

	app := tui.New(ctrl, title)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- ctrl.Run(ctx, session.Params{
			MediaID: mediaID,
			VideoID: tuiVideoID,
			Type:    mediaType,
			Source: player.Source{
				URL:     args[0],
				Title:   title,
				MediaID: mediaID,
				VideoID: tuiVideoID,
			},
		})
		app.Close()
	}()

	if err := app.Run(ctx); err != nil {
		ctrl.Stop()
		<-runErr
		return err
	}

	ctrl.Stop()
	return <-runErr
}
