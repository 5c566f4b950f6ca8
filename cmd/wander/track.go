package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wanderkit/wander/internal/domain"
	"github.com/wanderkit/wander/internal/locate"
	"github.com/wanderkit/wander/internal/proximity"
	"github.com/wanderkit/wander/internal/session"
	"github.com/wanderkit/wander/internal/store"
)

func trackCmd() *cobra.Command {
	var (
		replayPath string
		geoURL     string
		interval   time.Duration
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "track",
		Short: "Poll the current location and alert near unvisited items",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := loadState()
			if err != nil {
				return err
			}
			local, err := openLocal()
			if err != nil {
				return err
			}
			defer local.Close()

			provider, err := buildProvider(replayPath, geoURL, state.GeoURL())
			if err != nil {
				return err
			}

			notifier := newConsoleNotifier(!quiet)
			evaluator := proximity.NewEvaluator(notifier)

			sampler := locate.NewSampler(provider, evaluator.HandleFix, locate.Config{Interval: interval})

			sess, token := state.Session()
			auth := session.NewRemoteAuth(nil, state.SyncServerURL(), sess, token, state.SetSession)

			hadSession := false
			gate := session.NewGate(
				local,
				func(*domain.Session) store.Interface {
					return store.NewRemote(nil, state.SyncServerURL(), auth.Token())
				},
				evaluator.SetItems,
				func(st store.Interface, scope string, s *domain.Session) {
					evaluator.SetBackend(st, scope)
					// Host policy: an active tracking session does not
					// survive sign-out.
					if s == nil && hadSession {
						sampler.Stop()
					}
					hadSession = s != nil
				},
			)
			gate.Bind(auth)
			defer gate.Close()

			sampler.Start()
			defer sampler.Stop()
			fmt.Println("Tracking started. Ctrl-C to stop.")

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

			status := time.NewTicker(time.Second)
			defer status.Stop()

			var lastShown *domain.GeoLocation
			for {
				select {
				case <-sig:
					fmt.Println("\nTracking stopped.")
					return nil
				case <-status.C:
					if err := sampler.Err(); err != nil {
						fmt.Printf("location: %v\n", err)
						sampler.ClearErr()
						if errors.Is(err, locate.ErrPermissionDenied) {
							fmt.Println("Tracking disabled; re-run 'wander track' after granting access.")
							return nil
						}
					}
					if loc := sampler.Location(); loc != nil && (lastShown == nil || *lastShown != *loc) {
						fmt.Printf("at %.5f, %.5f\n", loc.Lat, loc.Lng)
						lastShown = loc
					}
					if !sampler.Tracking() {
						return nil
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&replayPath, "replay", "", "replay a JSON track file instead of live fixes")
	cmd.Flags().StringVar(&geoURL, "geo-url", "", "geolocation endpoint returning {\"lat\",\"lng\"}")
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (default 5s, clamped to 1s..30s)")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "suppress proximity alerts")
	return cmd
}

func buildProvider(replayPath, geoURL, savedGeoURL string) (locate.Provider, error) {
	if replayPath != "" {
		return locate.LoadReplay(replayPath)
	}
	if geoURL == "" {
		geoURL = savedGeoURL
	}
	if geoURL == "" {
		return nil, fmt.Errorf("no location source: pass --geo-url or --replay")
	}
	return locate.NewHTTPProvider(nil, geoURL), nil
}
