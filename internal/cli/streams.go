package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/rtmp-auth/internal/common"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/models"
	"github.com/dmitrijs2005/rtmp-auth/internal/timex"
)

const clearScreen = "\033[H\033[2J"

func (a *App) streamsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "streams",
		Short: "Inspect configured streams",
	}
	cmd.AddCommand(a.streamsListCmd())
	cmd.AddCommand(a.streamsCopyCmd())
	return cmd
}

// listRow is a table row whose EXPIRES column is kept current by a
// timex.Renderer.
type listRow struct {
	stream *models.Stream
	text   string
}

func (r *listRow) RawExpiry() string {
	return strconv.FormatInt(r.stream.AuthExpire, 10)
}

func (r *listRow) SetText(text string) {
	r.text = text
}

func status(s *models.Stream) string {
	var parts []string
	if s.Active {
		parts = append(parts, "live")
	}
	if s.Blocked {
		parts = append(parts, "blocked")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}

func (a *App) printStreams(rows []*listRow) {
	tbl := table.New("ID", "STREAM", "KEY", "EXPIRES", "STATUS", "NOTES").WithWriter(a.out)
	for _, r := range rows {
		tbl.AddRow(r.stream.ID, r.stream.Path(), r.stream.AuthKey, r.text, status(r.stream), r.stream.Notes)
	}
	tbl.Print()
}

func (a *App) streamsListCmd() *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the configured streams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			backend, err := a.openBackend(ctx)
			if err != nil {
				return err
			}
			defer backend.Close()

			state, err := backend.Read(ctx)
			if err != nil {
				return fmt.Errorf("read state: %w", err)
			}

			rows := make([]*listRow, 0, len(state.Streams))
			fields := make([]timex.Field, 0, len(state.Streams))
			for _, s := range state.Streams {
				row := &listRow{stream: s}
				if s.AuthExpire == models.NeverExpires {
					row.text = "never"
				}
				rows = append(rows, row)
				fields = append(fields, row)
			}

			if !watch {
				timex.NewRenderer(a.clock, fields).Refresh()
				a.printStreams(rows)
				return nil
			}

			renderer := timex.NewRenderer(a.clock, fields, timex.WithOnRefresh(func() {
				fmt.Fprint(a.out, clearScreen)
				a.printStreams(rows)
			}))
			renderer.Run(ctx, interval)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep refreshing the expiry column")
	cmd.Flags().DurationVar(&interval, "interval", timex.DefaultRefreshInterval, "refresh interval for --watch")
	return cmd
}

func (a *App) streamsCopyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy <id>",
		Short: "Copy the auth key of a stream to the clipboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			backend, err := a.openBackend(ctx)
			if err != nil {
				return err
			}
			defer backend.Close()

			state, err := backend.Read(ctx)
			if err != nil {
				return fmt.Errorf("read state: %w", err)
			}

			stream, _ := state.FindByID(args[0])
			if stream == nil {
				return fmt.Errorf("stream %s: %w", args[0], common.ErrNotFound)
			}

			if err := a.clipboard.WriteAll(stream.AuthKey); err != nil {
				return fmt.Errorf("copy to clipboard: %w", err)
			}
			fmt.Fprintf(a.errOut, "copied key of %s to clipboard\n", stream.Path())
			return nil
		},
	}
}
