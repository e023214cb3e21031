package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/castaway-tv/castaway/internal/config"
	"github.com/castaway-tv/castaway/internal/store"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

var (
	continueLimit   int
	continueWidth   int
	continueDataDir string
)

// continueCmd represents the continue command
var continueCmd = &cobra.Command{
	Use:   "continue",
	Short: "List continue-watching entries",
	Long: `List the most recently watched, unfinished streams with their resume
positions. Use the printed media/video ids with 'castaway play' to
resume.`,
	RunE: runContinue,
}

func init() {
	rootCmd.AddCommand(continueCmd)

	continueCmd.Flags().IntVarP(&continueLimit, "limit", "n", 20, "Maximum entries to list")
	continueCmd.Flags().IntVarP(&continueWidth, "width", "w", 40, "Title column width")
	continueCmd.Flags().StringVar(&continueDataDir, "data-dir", "", "Data directory for the progress database")
}

func runContinue(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	dataDir := continueDataDir
	if dataDir == "" {
		dataDir = cfg.DataDir
	}

	dbPath := filepath.Join(dataDir, "progress.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("Nothing to continue watching.")
		return nil
	}

	st, err := store.NewSQLite(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open progress store: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Best-effort cleanup; the listing still works if pruning fails
	if retention := cfg.Retention(); retention > 0 {
		_, _ = st.DeleteFinished(ctx, retention)
	}

	records, err := st.ListRecent(ctx, continueLimit)
	if err != nil {
		return fmt.Errorf("failed to list progress: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("Nothing to continue watching.")
		return nil
	}

	for _, rec := range records {
		title := rec.Title
		if title == "" {
			title = rec.MediaID
		}
		fmt.Printf("%s  %s %3.0f%%  %s / %s  %s\n",
			fitToWidth(title, continueWidth),
			ratioBar(rec.Ratio, 10),
			rec.Ratio*100,
			formatSeconds(rec.Position),
			formatSeconds(rec.Duration),
			rec.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	return nil
}

// fitToWidth pads or truncates text to a fixed display width,
// measured in display columns so wide Unicode characters line up
func fitToWidth(text string, width int) string {
	if width <= 0 {
		return text
	}

	currentWidth := runewidth.StringWidth(text)
	if currentWidth > width {
		ellipsis := "..."
		ellipsisWidth := runewidth.StringWidth(ellipsis)
		if width <= ellipsisWidth {
			return runewidth.Truncate(ellipsis, width, "")
		}
		return runewidth.Truncate(text, width-ellipsisWidth, "") + ellipsis
	}
	if currentWidth < width {
		return text + strings.Repeat(" ", width-currentWidth)
	}
	return text
}

// ratioBar renders a completion ratio as a fixed-width bar
func ratioBar(ratio float64, width int) string {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio * float64(width))
	return "[" + strings.Repeat("=", filled) + strings.Repeat("-", width-filled) + "]"
}

// formatSeconds renders a second count as h:mm:ss or m:ss
func formatSeconds(secs float64) string {
	total := int(secs)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
