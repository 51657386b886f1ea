package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"aircon_manager/internal/config"
	"aircon_manager/internal/models"
)

func TestStartAction_Validation(t *testing.T) {
	t.Parallel()

	cfg := controllerTestConfig()
	pl := newFakePlant(map[string]float64{"living": 24.5, "bedroom": 21.8})
	fx := newTestController(cfg, pl)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cases := []struct {
		name    string
		action  models.QuickAction
		params  ActionParams
		wantErr error
	}{
		{"unknown action", models.QuickAction("disco"), ActionParams{}, ErrInvalidAction},
		{"none is not startable", models.ActionNone, ActionParams{}, ErrInvalidAction},
		{"boost below minimum", models.ActionBoost, ActionParams{DurationMinutes: 5}, ErrInvalidDuration},
		{"boost above maximum", models.ActionBoost, ActionParams{DurationMinutes: 200}, ErrInvalidDuration},
		{"sleep below minimum", models.ActionSleep, ActionParams{DurationMinutes: 30}, ErrInvalidDuration},
		{"party above maximum", models.ActionParty, ActionParams{DurationMinutes: 400}, ErrInvalidDuration},
	}
	for _, tc := range cases {
		if err := fx.ctrl.StartAction(ctx, tc.action, tc.params); !errors.Is(err, tc.wantErr) {
			t.Errorf("%s: want %v, got %v", tc.name, tc.wantErr, err)
		}
	}

	// A valid start, then a second action while one is active.
	if err := fx.ctrl.StartAction(ctx, models.ActionBoost, ActionParams{DurationMinutes: 45}); err != nil {
		t.Fatalf("StartAction(boost): %v", err)
	}
	if err := fx.ctrl.StartAction(ctx, models.ActionParty, ActionParams{}); !errors.Is(err, ErrActionActive) {
		t.Fatalf("second action: want ErrActionActive, got %v", err)
	}

	snap := fx.states.lastSaved(t)
	if snap.QuickAction.Active != models.ActionBoost {
		t.Errorf("persisted action: want boost, got %s", snap.QuickAction.Active)
	}
	if snap.QuickAction.ExpiresAt == nil {
		t.Fatalf("boost must carry a deadline")
	}
	until := time.Until(*snap.QuickAction.ExpiresAt)
	if until < 44*time.Minute || until > 46*time.Minute {
		t.Errorf("deadline: want ~45m out, got %s", until)
	}

	if err := fx.ctrl.StopAction(ctx); err != nil {
		t.Fatalf("StopAction: %v", err)
	}
	if err := fx.ctrl.StopAction(ctx); !errors.Is(err, ErrNoActionActive) {
		t.Fatalf("stop without action: want ErrNoActionActive, got %v", err)
	}
}

func TestVacation_WidensDeadbandAndRestoresOnStop(t *testing.T) {
	t.Parallel()

	cfg := controllerTestConfig()
	// 1.5 under target: a 22 band speed normally, baseline inside the widened
	// vacation deadband.
	pl := newFakePlant(map[string]float64{"living": 20.5, "bedroom": 20.5})
	fx := newTestController(cfg, pl)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := fx.ctrl.StartAction(ctx, models.ActionVacation, ActionParams{}); err != nil {
		t.Fatalf("StartAction(vacation): %v", err)
	}
	if snap := fx.states.lastSaved(t); snap.QuickAction.ExpiresAt != nil {
		t.Fatalf("vacation must not expire on its own")
	}

	if err := fx.ctrl.ForceOptimize(ctx); err != nil {
		t.Fatalf("ForceOptimize: %v", err)
	}
	// Baseline 50 capped to the vacation 30. Seeing 22 here would mean the
	// configured deadband was used instead of the widened one.
	if got := pl.zonesFor("living"); len(got) != 1 || got[0] != 30 {
		t.Fatalf("living airflow under vacation: want [30], got %v", got)
	}

	if err := fx.ctrl.StopAction(ctx); err != nil {
		t.Fatalf("StopAction: %v", err)
	}
	// Pre-action speeds (never commanded, 0) come back.
	if got := pl.zonesFor("living"); len(got) != 2 || got[1] != 0 {
		t.Fatalf("living airflow after stop: want [30 0], got %v", got)
	}

	ends := fx.events.ofType(models.EventActionEnd)
	if len(ends) != 1 {
		t.Fatalf("action end events: want 1, got %d", len(ends))
	}
	if ends[0].Description != "quick action vacation stopped" {
		t.Errorf("end description: got %q", ends[0].Description)
	}
}

func TestBoost_MultipliesSpeedsAndExpiresOnce(t *testing.T) {
	t.Parallel()

	cfg := controllerTestConfig()
	pl := newFakePlant(map[string]float64{"living": 23.6, "bedroom": 26.5})
	fx := newTestController(cfg, pl)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Baseline cycle: living 1.6 over -> 65, bedroom 4.5 over -> 100.
	if err := fx.ctrl.ForceOptimize(ctx); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if err := fx.ctrl.StartAction(ctx, models.ActionBoost, ActionParams{}); err != nil {
		t.Fatalf("StartAction(boost): %v", err)
	}

	// Boost: 65*1.5 rounds to 98, 100*1.5 capped to 100 (unchanged, so not
	// re-commanded).
	if err := fx.ctrl.ForceOptimize(ctx); err != nil {
		t.Fatalf("boosted cycle: %v", err)
	}
	if got := pl.zonesFor("living"); len(got) != 2 || got[1] != 98 {
		t.Fatalf("living airflow under boost: want [65 98], got %v", got)
	}
	if got := pl.zonesFor("bedroom"); len(got) != 1 || got[0] != 100 {
		t.Fatalf("bedroom airflow: want [100] only, got %v", got)
	}

	// Run the deadline out; the next cycle must restore exactly once.
	past := time.Now().UTC().Add(-time.Minute)
	fx.ctrl.state.quick.ExpiresAt = &past
	if err := fx.ctrl.ForceOptimize(ctx); err != nil {
		t.Fatalf("expiring cycle: %v", err)
	}

	if got := pl.zonesFor("living"); len(got) != 3 || got[2] != 65 {
		t.Fatalf("living airflow after expiry: want [65 98 65], got %v", got)
	}
	if snap := fx.states.lastSaved(t); snap.QuickAction.Active != models.ActionNone {
		t.Errorf("action still active after expiry: %s", snap.QuickAction.Active)
	}

	ends := fx.events.ofType(models.EventActionEnd)
	if len(ends) != 1 {
		t.Fatalf("action end events: want exactly 1, got %d", len(ends))
	}
	if ends[0].Description != "quick action boost expired" {
		t.Errorf("end description: got %q", ends[0].Description)
	}
	meta, ok := ends[0].Metadata.(map[string]any)
	if !ok {
		t.Fatalf("end metadata: want map, got %T", ends[0].Metadata)
	}
	if meta["rooms_restored"] != 2 {
		t.Errorf("rooms_restored: want 2, got %v", meta["rooms_restored"])
	}

	// Another cycle after expiry stays quiet.
	if err := fx.ctrl.ForceOptimize(ctx); err != nil {
		t.Fatalf("post-expiry cycle: %v", err)
	}
	if got := fx.events.ofType(models.EventActionEnd); len(got) != 1 {
		t.Errorf("expiry must fire exactly once, got %d end events", len(got))
	}
}

func TestQuickActionExpiry_KeepsManualChange(t *testing.T) {
	t.Parallel()

	cfg := controllerTestConfig()
	pl := newFakePlant(map[string]float64{"living": 23.6, "bedroom": 23.6})
	fx := newTestController(cfg, pl)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := fx.ctrl.ForceOptimize(ctx); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if err := fx.ctrl.StartAction(ctx, models.ActionBoost, ActionParams{}); err != nil {
		t.Fatalf("StartAction: %v", err)
	}
	if err := fx.ctrl.ForceOptimize(ctx); err != nil {
		t.Fatalf("boosted cycle: %v", err)
	}

	// The living damper was moved by hand while boost was running: its value
	// no longer matches what the overlay set, so expiry must not touch it.
	fx.ctrl.state.rooms["living"].LastCommanded = 55
	past := time.Now().UTC().Add(-time.Minute)
	fx.ctrl.state.quick.ExpiresAt = &past

	if err := fx.ctrl.ForceOptimize(ctx); err != nil {
		t.Fatalf("expiring cycle: %v", err)
	}

	ends := fx.events.ofType(models.EventActionEnd)
	if len(ends) != 1 {
		t.Fatalf("action end events: want 1, got %d", len(ends))
	}
	meta := ends[0].Metadata.(map[string]any)
	if meta["rooms_restored"] != 1 {
		t.Errorf("rooms_restored: want 1 (bedroom only), got %v", meta["rooms_restored"])
	}
}

func TestSleep_CapsSpeedsAndShiftsTarget(t *testing.T) {
	t.Parallel()

	cfg := controllerTestConfig()
	pl := newFakePlant(map[string]float64{"living": 24.5, "bedroom": 21.8})
	fx := newTestController(cfg, pl)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := fx.ctrl.StartAction(ctx, models.ActionSleep, ActionParams{}); err != nil {
		t.Fatalf("StartAction(sleep): %v", err)
	}
	if err := fx.ctrl.ForceOptimize(ctx); err != nil {
		t.Fatalf("ForceOptimize: %v", err)
	}

	snap := fx.states.lastSaved(t)
	for _, r := range snap.Rooms {
		// Cooling shifts the sleep target up by the configured 1.0.
		if r.EffectiveTarget != 23 {
			t.Errorf("room %s effective target: want 23, got %v", r.Name, r.EffectiveTarget)
		}
	}

	// living is now 1.5 over the shifted target (65 raw), capped to 40;
	// bedroom 1.2 under it (22), already below the cap.
	if got := pl.zonesFor("living"); len(got) != 1 || got[0] != 40 {
		t.Errorf("living airflow under sleep: want [40], got %v", got)
	}
	if got := pl.zonesFor("bedroom"); len(got) != 1 || got[0] != 22 {
		t.Errorf("bedroom airflow under sleep: want [22], got %v", got)
	}
}

func TestParty_FloorsSpeedsAtMedian(t *testing.T) {
	t.Parallel()

	cfg := controllerTestConfig()
	cfg.Rooms = append(cfg.Rooms, config.Room{Name: "study"})
	pl := newFakePlant(map[string]float64{"living": 24.5, "bedroom": 23.1, "study": 21.8})
	fx := newTestController(cfg, pl)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := fx.ctrl.StartAction(ctx, models.ActionParty, ActionParams{}); err != nil {
		t.Fatalf("StartAction(party): %v", err)
	}
	if err := fx.ctrl.ForceOptimize(ctx); err != nil {
		t.Fatalf("ForceOptimize: %v", err)
	}

	// Raw speeds 75/55/50, median 55, floored to the party minimum 60.
	if got := pl.zonesFor("living"); len(got) != 1 || got[0] != 75 {
		t.Errorf("living airflow: want [75], got %v", got)
	}
	if got := pl.zonesFor("bedroom"); len(got) != 1 || got[0] != 60 {
		t.Errorf("bedroom airflow: want [60], got %v", got)
	}
	if got := pl.zonesFor("study"); len(got) != 1 || got[0] != 60 {
		t.Errorf("study airflow: want [60], got %v", got)
	}
}

func TestBoost_BypassesEnhancedProtection(t *testing.T) {
	t.Parallel()

	cfg := controllerTestConfig()
	cfg.EnhancedProtection = config.EnhancedProtection{
		Enabled:         true,
		UndercoolMargin: 0.5,
		MinModeDuration: 10 * time.Minute,
		MinRunCycles:    2,
	}
	pl := newFakePlant(map[string]float64{"living": 24.5, "bedroom": 23.5})
	fx := newTestController(cfg, pl)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := fx.ctrl.ForceOptimize(ctx); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if got := pl.modeLog(); len(got) != 1 || got[0] != models.ModeCool {
		t.Fatalf("mode commands: want [cool], got %v", got)
	}

	if err := fx.ctrl.StartAction(ctx, models.ActionBoost, ActionParams{}); err != nil {
		t.Fatalf("StartAction(boost): %v", err)
	}

	// Fresh mode timers would normally hold cool; boost skips the gate.
	pl.setTemp("living", 21.0)
	pl.setTemp("bedroom", 21.2)
	if err := fx.ctrl.ForceOptimize(ctx); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if got := pl.modeLog(); len(got) != 2 || got[1] != models.ModeFanOnly {
		t.Fatalf("boost should allow the compressor exit, got %v", got)
	}
}
