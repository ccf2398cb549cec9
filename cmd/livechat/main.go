// Command livechat prints the chat of a live broadcast to stdout.
//
//	livechat tail --channel UCxxxx
//	livechat tail --live dQw4w9WgXcQ --json
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/onnwee/livechat-tender/livechat"
	"github.com/onnwee/livechat-tender/youtubeapi"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:     "livechat",
		Usage:    "follow the chat of a live broadcast",
		Writer:   out,
		Commands: []*cli.Command{tailCommand(out)},
	}
}

func tailCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "tail",
		Usage: "print new comments until the stream ends or the process is interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "channel", Aliases: []string{"c"}, Usage: "channel id to follow"},
			&cli.StringFlag{Name: "live", Aliases: []string{"l"}, Usage: "live video id to follow"},
			&cli.DurationFlag{Name: "interval", Aliases: []string{"i"}, Value: livechat.DefaultInterval, Usage: "poll interval"},
			&cli.BoolFlag{Name: "json", Usage: "print one JSON object per comment"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log session events to stderr"},
			&cli.StringFlag{Name: "base-url", Value: livechat.DefaultBaseURL, EnvVars: []string{"YT_BASE_URL"}, Usage: "platform base URL"},
			&cli.StringFlag{Name: "data-api-key", EnvVars: []string{"YT_DATA_API_KEY"}, Usage: "YouTube Data API key used when the channel page has no live video"},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			lvl := slog.LevelWarn
			if c.Bool("verbose") {
				lvl = slog.LevelInfo
			}
			opts := tailOptions{
				ChannelID: c.String("channel"),
				LiveID:    c.String("live"),
				Interval:  c.Duration("interval"),
				BaseURL:   c.String("base-url"),
				JSON:      c.Bool("json"),
				Logger:    slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})),
			}
			if key := c.String("data-api-key"); key != "" && opts.ChannelID != "" {
				lookup, err := youtubeapi.NewLookup(ctx, key)
				if err != nil {
					return cli.Exit(err.Error(), 2)
				}
				opts.Lookup = lookup
			}
			if err := tail(ctx, out, opts); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

type tailOptions struct {
	ChannelID string
	LiveID    string
	Interval  time.Duration
	BaseURL   string
	JSON      bool
	Lookup    livechat.LiveLookup
	Logger    *slog.Logger
}

// tail follows one broadcast and writes every comment to out. It returns the
// start failure, or nil once the session has ended.
func tail(ctx context.Context, out io.Writer, opts tailOptions) error {
	lc, err := livechat.New(livechat.Options{
		ChannelID: opts.ChannelID,
		LiveID:    opts.LiveID,
		Interval:  opts.Interval,
		BaseURL:   opts.BaseURL,
		Lookup:    opts.Lookup,
		Logger:    opts.Logger,
		Client:    livechat.NewHTTPClient(10 * time.Second),
	})
	if err != nil {
		if errors.Is(err, livechat.ErrInvalidArgument) {
			return errors.New("exactly one of --channel or --live is required")
		}
		return err
	}

	var startErr error
	enc := json.NewEncoder(out)
	lc.Subscribe(func(ev livechat.Event) {
		switch e := ev.(type) {
		case livechat.Started:
			if !opts.JSON {
				fmt.Fprintf(out, "# attached to %s\n", e.BroadcastID)
			}
		case livechat.CommentEvent:
			if opts.JSON {
				_ = enc.Encode(e.Comment)
				return
			}
			fmt.Fprintln(out, formatComment(e.Comment))
		case livechat.Ended:
			if !opts.JSON {
				fmt.Fprintf(out, "# ended: %s\n", e.Reason)
			}
		case livechat.Failed:
			if lc.State() == livechat.StateIdle {
				startErr = e.Err
				return
			}
			if opts.Logger != nil {
				opts.Logger.Warn("poll failed", slog.Any("err", e.Err))
			}
		}
	})

	if !lc.Start(ctx) {
		if startErr == nil {
			startErr = errors.New("live chat did not start")
		}
		return startErr
	}
	lc.Wait()
	return nil
}

func formatComment(c livechat.Comment) string {
	line := fmt.Sprintf("[%s] %s: %s", c.Timestamp.Local().Format("15:04:05"), c.Author.Name, c.Text())
	switch {
	case c.SuperChat != nil:
		line += " (" + c.SuperChat.Amount + ")"
	case c.SuperSticker != nil:
		line += " (sticker " + c.SuperSticker.Amount + ")"
	case c.IsMembership:
		line += " (member)"
	}
	return line
}
