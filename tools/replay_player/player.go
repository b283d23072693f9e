package replayplayer

import (
	"context"
	"fmt"
	"time"

	"fluorine/viewer/internal/config"
	"fluorine/viewer/internal/derive"
	"fluorine/viewer/internal/query"
	"fluorine/viewer/internal/replay"
	"fluorine/viewer/internal/viewer"
)

// PlayerLine is one player's standing at a turn.
type PlayerLine struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Ships    int    `json:"ships"`
	Dropoffs int    `json:"dropoffs"`
	Banked   int    `json:"banked"`
	Carrying int    `json:"carrying"`
}

// TurnSummary is the headline state of a single turn.
type TurnSummary struct {
	Turn        int          `json:"turn"`
	Free        int          `json:"free"`
	FreePercent int          `json:"free_percent"`
	Collisions  int          `json:"collisions"`
	Players     []PlayerLine `json:"players"`
}

// String renders a compact single-line view of the turn.
func (s TurnSummary) String() string {
	line := fmt.Sprintf("turn %4d  free %d (%d%%)", s.Turn, s.Free, s.FreePercent)
	for _, p := range s.Players {
		line += fmt.Sprintf("  %s: %d ships %d banked", p.Name, p.Ships, p.Banked)
	}
	if s.Collisions > 0 {
		line += fmt.Sprintf("  [%d wrecks]", s.Collisions)
	}
	return line
}

// Load reads, derives and indexes the replay at path using the load settings of cfg.
func Load(ctx context.Context, path string, cfg *config.Config) (*query.Context, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	//1.- Decode the document with the same plain/compressed rules as the viewer.
	doc, src, err := replay.ReadFile(ctx, path, cfg.Load.PlainExtension, cfg.MaxDecompressedBytes())
	if err != nil {
		return nil, err
	}

	//2.- Derive the history tables before building the lookup context.
	derived, err := derive.Run(ctx, doc)
	if err != nil {
		return nil, err
	}
	return query.New(doc, derived, path, src, time.Now())
}

// Timeline summarises every turn of the replay in order.
func Timeline(qc *query.Context) []TurnSummary {
	if qc == nil {
		return nil
	}
	wrecks := make(map[int]int)
	for _, c := range qc.Derived.Collisions {
		wrecks[c.Turn]++
	}
	out := make([]TurnSummary, 0, qc.Len())
	for turn := 0; turn < qc.Len(); turn++ {
		summary := TurnSummary{
			Turn:        turn,
			Free:        qc.RemainingResource(turn),
			FreePercent: qc.RemainingPercent(turn),
			Collisions:  wrecks[turn],
		}
		for _, p := range qc.Summaries(turn) {
			summary.Players = append(summary.Players, PlayerLine{
				ID:       p.PlayerID,
				Name:     p.Name,
				Ships:    p.Ships,
				Dropoffs: p.Dropoffs,
				Banked:   p.Current,
				Carrying: p.Carrying,
			})
		}
		out = append(out, summary)
	}
	return out
}

// Play emits each summary on the autoplay cadence and returns when the last
// turn was emitted or ctx ends.
func Play(ctx context.Context, summaries []TurnSummary, interval time.Duration, emit func(TurnSummary)) error {
	if len(summaries) == 0 {
		return nil
	}
	next := 0
	//1.- Each tick emits one turn; declining after the final turn ends the loop.
	loop := viewer.NewLoop(interval, func() bool {
		emit(summaries[next])
		next++
		return next < len(summaries)
	})
	loop.Start(ctx)
	<-loop.Done()
	if next < len(summaries) {
		return ctx.Err()
	}
	return nil
}
