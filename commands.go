package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"fyne.io/fyne/v2"
	"github.com/albarqi19/alraed-sub006/pkg/audio"
	"github.com/albarqi19/alraed-sub006/pkg/calendar"
	"github.com/albarqi19/alraed-sub006/pkg/config"
	"github.com/albarqi19/alraed-sub006/pkg/models"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/errgroup"
)

const (
	playTimeout     = 2 * time.Minute
	downloadWorkers = 4
)

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	ro := &rootOptions{}
	root := &cobra.Command{
		Use:          "alraed-bells",
		Short:        "Rings school bells on schedule",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&ro.configFile, "config", "", "config file (default is ./.alraed-bells.yaml or ~/.alraed-bells.yaml)")
	pf.String("data-dir", "", "directory for state, cache and logs")
	pf.String("state", "", "state backend: preferences, file or memory")
	pf.String("remote-url", "", "base URL of the remote state service")

	run := addRun(root, ro)
	root.RunE = run.RunE
	root.Flags().AddFlagSet(run.LocalFlags())

	addNext(root, ro)
	addPlay(root, ro)
	addPreview(root, ro)
	addDownload(root, ro)
	addCache(root, ro)
	addImport(root, ro)
	addBackground(root, ro)
	addActivate(root, ro)
	return root
}

func (ro *rootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(config.Options{ConfigFile: ro.configFile, Flags: cmd.Flags()})
}

// open loads the config and wires an instance for a one-shot command.
func (ro *rootOptions) open(cmd *cobra.Command) (*Bells, error) {
	cfg, err := ro.load(cmd)
	if err != nil {
		return nil, err
	}
	var fyneApp fyne.App
	if cfg.StateBackend == config.BackendPreferences {
		fyneApp = newDesktopApp()
	}
	return openBells(cmd.Context(), cfg, fyneApp, commandLogger(cfg))
}

func addRun(topLevel *cobra.Command, ro *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bell engine (default command)",
		Example: `
alraed-bells run
alraed-bells run --headless --state file --listen 0.0.0.0:8737
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ro.load(cmd)
			if err != nil {
				return err
			}
			l := commandLogger(cfg)

			var fyneApp fyne.App
			if !cfg.Headless || cfg.StateBackend == config.BackendPreferences {
				fyneApp = newDesktopApp()
			}
			b, err := openBells(cmd.Context(), cfg, fyneApp, l)
			if err != nil {
				return err
			}
			defer b.Close()

			if cfg.Headless {
				return b.runHeadless(cmd.Context())
			}
			b.runDesktop()
			return nil
		},
	}
	cmd.Flags().Bool("headless", false, "run without tray or windows")
	cmd.Flags().String("listen", "", "address for the HTTP API, empty to use the configured one")
	topLevel.AddCommand(cmd)
	return cmd
}

func addNext(topLevel *cobra.Command, ro *rootOptions) {
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Show the next bell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := ro.open(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			st := b.engine.Status()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, nextBellText(st))
			if st.Upcoming != nil && st.ScheduleEnabled {
				fmt.Fprintf(out, "%s on %s, sound %s\n",
					formatCountdown(time.Duration(st.RemainingSeconds)*time.Second),
					st.Upcoming.Occurrence.Format("Mon 02 Jan"),
					st.Upcoming.SoundID)
			}
			return nil
		},
	}
	topLevel.AddCommand(cmd)
}

func addPlay(topLevel *cobra.Command, ro *rootOptions) {
	cmd := &cobra.Command{
		Use:   "play <event-id>",
		Short: "Ring a bell of the active schedule now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := ro.open(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), playTimeout)
			defer cancel()
			outcome, err := b.engine.TriggerManual(ctx, args[0])
			return reportOutcome(cmd.OutOrStdout(), outcome, err)
		},
	}
	topLevel.AddCommand(cmd)
}

func addPreview(topLevel *cobra.Command, ro *rootOptions) {
	cmd := &cobra.Command{
		Use:   "preview <sound-id>",
		Short: "Play a sound without logging it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := ro.open(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), playTimeout)
			defer cancel()
			outcome := b.engine.Preview(ctx, args[0])
			return reportOutcome(cmd.OutOrStdout(), outcome, b.sounds.LastError())
		},
	}
	topLevel.AddCommand(cmd)
}

func reportOutcome(w io.Writer, outcome audio.Outcome, err error) error {
	switch outcome {
	case audio.OutcomePlayed:
		fmt.Fprintln(w, "played")
		return nil
	case audio.OutcomeFallbackPlayed:
		fmt.Fprintf(w, "played fallback tone: %v\n", err)
		return nil
	}
	if err == nil {
		err = errors.New("playback failed")
	}
	return err
}

func addDownload(topLevel *cobra.Command, ro *rootOptions) {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "download [sound-id...]",
		Short: "Download sounds into the local cache",
		Long:  "Download the given sounds, or every downloadable asset when none are named.",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := ro.open(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			ids := args
			if len(ids) == 0 {
				for _, a := range b.manager.State().AudioAssets {
					if a.URL != "" && a.Status != models.AssetMissing {
						ids = append(ids, a.ID)
					}
				}
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to download")
				return nil
			}

			var progressOut io.Writer = cmd.ErrOrStderr()
			if quiet {
				progressOut = io.Discard
			}
			failed := downloadAll(cmd.Context(), b.engine.Download, ids, progressOut)
			if len(failed) > 0 {
				return fmt.Errorf("download failed for %s: %v", strings.Join(failed, ", "), b.sounds.LastError())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cached %d sound(s), %s total\n",
				len(ids), humanize.Bytes(uint64(b.sounds.CachedSize())))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "hide progress bars")
	topLevel.AddCommand(cmd)
}

type downloadFunc func(ctx context.Context, soundID string, onProgress func(audio.Progress)) bool

// downloadAll runs the downloads with bounded concurrency, one progress bar
// per sound, and returns the ids that failed in input order.
func downloadAll(ctx context.Context, download downloadFunc, ids []string, out io.Writer) []string {
	p := mpb.NewWithContext(ctx, mpb.WithOutput(out), mpb.WithWidth(48), mpb.WithRefreshRate(100*time.Millisecond))
	barStyle := mpb.BarStyle().Lbound("╢").Filler("█").Tip("█").Padding("░").Rbound("╟")

	ok := make([]bool, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(downloadWorkers)
	for i, id := range ids {
		bar := p.New(0, barStyle,
			mpb.PrependDecorators(
				decor.Name(id, decor.WC{W: len(id) + 1, C: decor.DindentRight}),
				decor.OnComplete(decor.Percentage(decor.WC{W: 5}), "done"),
			),
			mpb.AppendDecorators(
				decor.Counters(decor.SizeB1024(0), "% .1f / % .1f"),
			),
		)
		g.Go(func() error {
			ok[i] = download(ctx, id, func(pr audio.Progress) {
				bar.SetTotal(pr.Total, false)
				bar.SetCurrent(pr.Received)
			})
			if ok[i] {
				bar.SetTotal(-1, true)
			} else {
				bar.Abort(false)
			}
			return nil
		})
	}
	_ = g.Wait()
	p.Wait()

	var failed []string
	for i, id := range ids {
		if !ok[i] {
			failed = append(failed, id)
		}
	}
	return failed
}

func addCache(topLevel *cobra.Command, ro *rootOptions) {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear the sound cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cached sounds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := ro.open(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SOUND\tSTATUS\tSIZE\tCACHED")
			cached := make(map[string]int64)
			for _, e := range b.sounds.CachedEntries() {
				cached[e.ID] = e.Size
			}
			for _, a := range b.sounds.WithCacheStatus(b.manager.State().AudioAssets) {
				size, when := "-", "-"
				if n, ok := cached[a.ID]; ok {
					size = humanize.Bytes(uint64(n))
					delete(cached, a.ID)
				}
				if a.LastSync != nil {
					when = humanize.Time(*a.LastSync)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.LocalStatus, size, when)
			}
			for id, n := range cached {
				fmt.Fprintf(w, "%s\t%s\t%s\t-\n", id, models.CacheCached, humanize.Bytes(uint64(n)))
			}
			fmt.Fprintf(w, "TOTAL\t\t%s\t\n", humanize.Bytes(uint64(b.sounds.CachedSize())))
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <sound-id>...",
		Short: "Remove sounds from the cache",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := ro.open(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			var missing []string
			for _, id := range args {
				if !b.sounds.RemoveCached(id) {
					missing = append(missing, id)
				}
			}
			if len(missing) > 0 {
				return fmt.Errorf("not cached: %s", strings.Join(missing, ", "))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached sound",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := ro.open(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			freed := b.sounds.CachedSize()
			if !b.sounds.ClearCache() {
				return errors.New("sound cache is unavailable")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "freed %s\n", humanize.Bytes(uint64(freed)))
			return nil
		},
	})

	topLevel.AddCommand(cmd)
}

func addImport(topLevel *cobra.Command, ro *rootOptions) {
	var (
		name     string
		id       string
		activate bool
	)
	cmd := &cobra.Command{
		Use:   "import-ics <url|file>",
		Short: "Import a bell schedule from an iCalendar feed",
		Example: `
alraed-bells import-ics https://school.example/bells.ics --name Winter --activate
alraed-bells import-ics ./ramadan.ics --id ramadan
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := ro.open(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			if name == "" {
				name = "Imported " + time.Now().Format("2006-01-02")
			}
			sched, err := importSchedule(cmd.Context(), calendar.NewImporter(b.log), args[0], name)
			if err != nil {
				return err
			}
			if id != "" {
				sched.ID = id
			}
			sched.AllowBackground = true
			if err := b.manager.UpsertSchedule(sched); err != nil {
				return err
			}
			if activate {
				if err := b.manager.SetActiveSchedule(sched.ID); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %q as %s with %d bell(s)\n", sched.Name, sched.ID, len(sched.Events))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "schedule name")
	cmd.Flags().StringVar(&id, "id", "", "schedule id, replaces an existing schedule with the same id")
	cmd.Flags().BoolVar(&activate, "activate", false, "make the imported schedule active")
	topLevel.AddCommand(cmd)
}

func importSchedule(ctx context.Context, im *calendar.Importer, source, name string) (models.BellSchedule, error) {
	if u, err := url.Parse(source); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return im.Import(ctx, source, name)
	}
	if strings.HasPrefix(source, "webcal://") {
		return im.Import(ctx, "https://"+strings.TrimPrefix(source, "webcal://"), name)
	}
	f, err := os.Open(source)
	if err != nil {
		return models.BellSchedule{}, err
	}
	defer f.Close()
	return im.Parse(f, name)
}

func addBackground(topLevel *cobra.Command, ro *rootOptions) {
	cmd := &cobra.Command{
		Use:       "background <on|off>",
		Short:     "Allow or forbid ringing while the app is in the background",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := ro.open(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			b.manager.SetBackgroundExecution(args[0] == "on")
			fmt.Fprintf(cmd.OutOrStdout(), "background execution %s\n", args[0])
			return nil
		},
	}
	topLevel.AddCommand(cmd)
}

func addActivate(topLevel *cobra.Command, ro *rootOptions) {
	cmd := &cobra.Command{
		Use:   "activate [schedule-id]",
		Short: "Select the active schedule, or list schedules when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := ro.open(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			if len(args) == 1 {
				return b.manager.SetActiveSchedule(args[0])
			}
			state := b.manager.State()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "\tID\tNAME\tBELLS\tENABLED")
			for _, s := range state.Schedules {
				mark := ""
				if s.ID == state.ActiveScheduleID {
					mark = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\n", mark, s.ID, s.Name, len(s.Events), s.Enabled)
			}
			return w.Flush()
		},
	}
	topLevel.AddCommand(cmd)
}
