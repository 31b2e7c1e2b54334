package main

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/vadcal/internal/config"
	"github.com/MrWong99/vadcal/internal/report"
)

// VoicesCmd lists the voices of the configured TTS provider so a voice_id can
// be picked for the calibration utterance.
type VoicesCmd struct {
	Timeout time.Duration `default:"15s" help:"Give up on the provider after this long."`
}

// Run implements the kong command.
func (c *VoicesCmd) Run(app *appContext) error {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	p, _, err := buildTTS(reg, app.cfg.Providers)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(app.ctx, c.Timeout)
	defer cancel()
	voices, err := p.ListVoices(ctx)
	if err != nil {
		return fmt.Errorf("list voices: %w", err)
	}
	fmt.Println(report.Voices(voices, voiceFor(app.cfg.Providers.TTS).ID))
	return nil
}
