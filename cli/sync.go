package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/autodev/api"
)

func (a *App) syncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Control the backend's Chatwork sync",
	}

	renderPolling := func(p api.PollingStatus) func(t *table) {
		return func(t *table) {
			last := "-"
			if p.LastPollAt != nil {
				last = formatTime(*p.LastPollAt)
			}
			t.row("Running", p.IsRunning)
			t.row("Interval", fmt.Sprintf("%ds", p.IntervalSeconds))
			t.row("Last poll", last)
			t.row("Polls", p.PollCount)
			t.row("Errors", p.ErrorCount)
		}
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show sync state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.api.Sync.Status(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(st, func(t *table) {
				t.row("Chatwork configured", st.ChatworkConfigured)
				renderPolling(st.Polling)(t)
			})
		},
	}

	control := func(use, short, done string, fn func(cmd *cobra.Command) (api.SyncControlResponse, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				resp, err := fn(cmd)
				if err != nil {
					return err
				}
				a.toast.Success(done, resp.Message)
				return a.render(resp, renderPolling(resp.Status))
			},
		}
	}
	start := control("start", "Start periodic sync", "同期を開始しました", func(cmd *cobra.Command) (api.SyncControlResponse, error) {
		return a.api.Sync.Start(cmd.Context())
	})
	stop := control("stop", "Stop periodic sync", "同期を停止しました", func(cmd *cobra.Command) (api.SyncControlResponse, error) {
		return a.api.Sync.Stop(cmd.Context())
	})

	config := &cobra.Command{
		Use:   "config <interval-seconds>",
		Short: "Change the sync interval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seconds, err := strconv.Atoi(args[0])
			if err != nil || seconds <= 0 {
				return fmt.Errorf("interval must be a positive number of seconds, got %q", args[0])
			}
			resp, err := a.api.Sync.Configure(cmd.Context(), seconds)
			if err != nil {
				return err
			}
			a.toast.Success("同期間隔を変更しました", resp.Message)
			return a.render(resp, renderPolling(resp.Status))
		},
	}

	now := &cobra.Command{
		Use:   "now [source-id]",
		Short: "Sync one source, or all sources, immediately",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var sourceID string
			if len(args) == 1 {
				sourceID = args[0]
			}
			resp, err := a.api.Sync.Now(cmd.Context(), sourceID)
			if err != nil {
				return err
			}
			a.toast.Success("同期しました", resp.Message)
			return a.render(resp, func(t *table) { t.row(resp.Message) })
		},
	}

	sources := &cobra.Command{
		Use:   "sources [source-id]",
		Short: "Show per-source sync progress",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []api.SourceSyncStatus
			if len(args) == 1 {
				st, err := a.api.Sync.SourceStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				statuses = []api.SourceSyncStatus{st}
			} else {
				var err error
				if statuses, err = a.api.Sync.SourceStatuses(cmd.Context()); err != nil {
					return err
				}
			}
			return a.render(statuses, func(t *table) {
				t.row("SOURCE", "LABEL", "ROOM", "MESSAGES", "LAST SYNC", "SYNCING", "ERROR")
				for _, s := range statuses {
					messages, last, syncing, errText := 0, "-", false, "-"
					if st := s.SyncStatus; st != nil {
						messages, syncing = st.TotalMessages, st.IsSyncing
						if st.LastSyncAt != nil {
							last = formatTime(*st.LastSyncAt)
						}
						if st.Error != nil {
							errText = shorten(*st.Error, 40)
						}
					}
					t.row(s.SourceID, s.Label, orDash(s.RoomID), messages, last, syncing, errText)
				}
			})
		},
	}

	cmd.AddCommand(status, start, stop, config, now, sources)
	return cmd
}
