// Package linker implements C8: it wires C5's new-token stream into C6's
// watch list. Grounded on pumpguard-rs/src/main.rs::link_modules.
package linker

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/pumpguard-dev/pumpguard/internal/detector"
	"github.com/pumpguard-dev/pumpguard/internal/rug"
	"github.com/pumpguard-dev/pumpguard/internal/stream"
)

// Linker subscribes to the token detector's new-token broadcast and
// forwards every previously-unwatched mint to the rug detector's watch
// list.
type Linker struct {
	tokenDetector *detector.Detector
	rugDetector   *rug.Detector
	logger        zerolog.Logger

	subCh <-chan any
	subID int
}

// New constructs the linker and immediately subscribes to the token
// detector's new-token bus. Per spec.md §4.7's explicit ordering contract,
// New (and hence the subscription) must be called before the token
// detector's Start — never call New after Start has begun publishing, or
// startup tokens may be missed.
func New(tokenDetector *detector.Detector, rugDetector *rug.Detector, logger zerolog.Logger) *Linker {
	ch, id := tokenDetector.SubscribeNewTokens()
	return &Linker{
		tokenDetector: tokenDetector,
		rugDetector:   rugDetector,
		logger:        logger.With().Str("component", "linker").Logger(),
		subCh:         ch,
		subID:         id,
	}
}

// Run drains the new-token subscription until ctx is cancelled or the
// channel is closed.
func (l *Linker) Run(ctx context.Context) {
	defer l.tokenDetector.UnsubscribeNewTokens(l.subID)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-l.subCh:
			if !ok {
				l.logger.Warn().Msg("new-token channel closed, linker exiting")
				return
			}
			switch v := msg.(type) {
			case detector.DetectedToken:
				// WatchToken is itself idempotent (spec.md §4.7/§8): a mint
				// already present in C6's watch list is left untouched.
				l.rugDetector.WatchToken(v.Mint, v.Name, v.Symbol, v.Creator, v.InitialLiquidity)
			case stream.Lag:
				l.logger.Warn().Uint64("skipped", v.Skipped).Msg("linker lagging behind new-token stream")
			}
		}
	}
}
