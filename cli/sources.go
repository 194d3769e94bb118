package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/autodev/api"
	"github.com/randalmurphal/autodev/ingest"
	"github.com/randalmurphal/autodev/settings"
)

func (a *App) sourcesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sources",
		Aliases: []string{"source"},
		Short:   "Manage conversation log sources",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List sources of the current project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := a.api.Sources.List(cmd.Context(), a.projectID(cmd.Context()))
			if err != nil {
				return err
			}
			return a.render(sources, func(t *table) {
				t.row("ID", "TYPE", "LABEL", "MESSAGES", "LAST SYNC", "CREATED")
				for _, s := range sources {
					t.row(s.ID, s.Type, s.Label, s.MessageCount, formatTime(s.LastSyncAt), formatTime(s.CreatedAt))
				}
			})
		},
	}

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.api.Sources.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(s, func(t *table) {
				t.row("ID", s.ID)
				t.row("Type", s.Type)
				t.row("Label", s.Label)
				t.row("Project", s.ProjectID)
				t.row("Messages", s.MessageCount)
				if s.File != nil {
					t.row("File", fmt.Sprintf("%s (%d bytes)", s.File.FileName, s.File.FileSize))
				}
				if s.Chatwork != nil {
					t.row("Chatwork room", fmt.Sprintf("%s (%s)", s.Chatwork.RoomName, s.Chatwork.RoomID))
				}
				t.row("Last sync", formatTime(s.LastSyncAt))
				t.row("Created", formatTime(s.CreatedAt))
			})
		},
	}

	var label string
	upload := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a conversation log file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			name := filepath.Base(args[0])
			a.overlay.Start("アップロード中: " + name)
			src, err := a.api.Sources.Upload(cmd.Context(), api.UploadRequest{
				Filename:  name,
				Reader:    f,
				Label:     label,
				ProjectID: a.projectID(cmd.Context()),
			})
			a.overlay.Stop()
			if err != nil {
				return err
			}
			a.toast.Success("アップロードしました", src.Label)
			return a.render(src, func(t *table) { t.row(src.ID, src.Label) })
		},
	}
	upload.Flags().StringVarP(&label, "label", "l", "", "Source label (defaults to the file name on the server)")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.api.Sources.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.toast.Success("ソースを削除しました", args[0])
			return nil
		},
	}

	messages := &cobra.Command{
		Use:   "messages <id>",
		Short: "Print the messages of a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.api.Sources.Messages(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.render(m, func(t *table) {
				if len(m.Messages) == 0 {
					fmt.Fprintln(t.tw, m.Content)
					return
				}
				t.row("TIME", "FROM", "MESSAGE")
				for _, msg := range m.Messages {
					sent := time.Unix(msg.SendTime, 0).Local().Format("2006-01-02 15:04")
					t.row(sent, msg.Account.Name, shorten(msg.Body, 80))
				}
			})
		},
	}

	chatworkStatus := &cobra.Command{
		Use:   "chatwork-status",
		Short: "Report whether the backend has a Chatwork token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.api.Sources.ChatworkStatus(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(st, func(t *table) { t.row("Configured", st.Configured) })
		},
	}

	chatworkRooms := &cobra.Command{
		Use:   "chatwork-rooms",
		Short: "List rooms visible to the Chatwork account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rooms, err := a.api.Sources.ChatworkRooms(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(rooms, func(t *table) {
				t.row("ROOM ID", "NAME", "TYPE", "UNREAD")
				for _, r := range rooms {
					t.row(r.RoomID, r.Name, r.Type, r.UnreadNum)
				}
			})
		},
	}

	var roomName string
	connect := &cobra.Command{
		Use:   "connect <room-id>",
		Short: "Connect a Chatwork room as a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("room id must be numeric, got %q", args[0])
			}
			src, err := a.api.Sources.ConnectChatwork(cmd.Context(), args[0], roomName, a.projectID(cmd.Context()))
			if err != nil {
				return err
			}
			a.toast.Success("Chatworkルームを接続しました", src.Label)
			return a.render(src, func(t *table) { t.row(src.ID, src.Label) })
		},
	}
	connect.Flags().StringVar(&roomName, "name", "", "Room name used as the label")

	cmd.AddCommand(list, get, upload, del, messages, chatworkStatus, chatworkRooms, connect, a.watchCommand())
	return cmd
}

func (a *App) watchCommand() *cobra.Command {
	var (
		existing   bool
		extensions []string
		settle     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Upload new log files dropped into a directory",
		Long: `watch uploads every new file with an accepted extension that appears in
dir, labelled with its file name. It runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("ext") {
				extensions = a.cfg.WatchExtensions
			}
			w, err := ingest.New(ingest.Config{
				Dir:             args[0],
				Extensions:      extensions,
				ProjectID:       a.projectID(cmd.Context()),
				Settle:          settle,
				IncludeExisting: existing,
			}, a.api.Sources, ingest.WithLogger(a.logger))
			if err != nil {
				return err
			}

			stop := a.serveMetrics(cmd.Context(), "sources watch")
			defer stop()
			if !cmd.Flags().Changed("ext") {
				a.watchConfig(cmd.Context(), func(cfg settings.Config) {
					w.SetExtensions(cfg.WatchExtensions)
				})
			}

			results := make(chan ingest.Result)
			done := make(chan error, 1)
			go func() { done <- w.Run(cmd.Context(), results) }()

			a.toast.Info("フォルダを監視しています", args[0])
			var uploaded, failed int
			for r := range results {
				if r.Err != nil {
					failed++
					a.toast.ErrorFrom("アップロードに失敗しました: "+filepath.Base(r.Path), r.Err)
					continue
				}
				uploaded++
				a.toast.Success("アップロードしました", r.Source.Label)
			}
			a.logger.Info("watch stopped", slog.Int("uploaded", uploaded), slog.Int("failed", failed))
			return ignoreCanceled(<-done)
		},
	}
	cmd.Flags().BoolVar(&existing, "existing", false, "Also upload files already in the directory")
	cmd.Flags().StringSliceVar(&extensions, "ext", nil, "Accepted extensions (default from config)")
	cmd.Flags().DurationVar(&settle, "settle", 0, "How long a file must stay unchanged before upload")
	return cmd
}
