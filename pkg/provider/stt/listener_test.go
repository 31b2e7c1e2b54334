package stt_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/vadcal/pkg/provider/stt"
	"github.com/MrWong99/vadcal/pkg/provider/stt/mock"
)

func TestGate_StartStop(t *testing.T) {
	sess := &mock.Session{}
	p := &mock.Provider{Session: sess}
	cfg := stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "en-US"}
	g := stt.NewGate(p, cfg)

	if g.IsListening() {
		t.Fatal("new gate should not be listening")
	}
	if err := g.StartListening(context.Background()); err != nil {
		t.Fatalf("StartListening: %v", err)
	}
	if !g.IsListening() {
		t.Fatal("IsListening() = false after StartListening")
	}
	if err := g.StartListening(context.Background()); err != nil {
		t.Fatalf("second StartListening: %v", err)
	}
	if len(p.StartStreamCalls) != 1 {
		t.Errorf("StartStream calls = %d, want 1", len(p.StartStreamCalls))
	}
	if p.StartStreamCalls[0].Cfg != cfg {
		t.Errorf("StartStream cfg = %+v, want %+v", p.StartStreamCalls[0].Cfg, cfg)
	}

	if err := g.SendAudio([]byte{1, 2}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if len(sess.SentAudio) != 1 {
		t.Errorf("SentAudio = %d chunks, want 1", len(sess.SentAudio))
	}

	if err := g.StopListening(); err != nil {
		t.Fatalf("StopListening: %v", err)
	}
	if g.IsListening() {
		t.Error("IsListening() = true after StopListening")
	}
	if sess.CloseCallCount != 1 {
		t.Errorf("Close calls = %d, want 1", sess.CloseCallCount)
	}
	if err := g.StopListening(); err != nil {
		t.Errorf("second StopListening: %v", err)
	}
	if err := g.SendAudio([]byte{1}); !errors.Is(err, stt.ErrNotListening) {
		t.Errorf("SendAudio after stop = %v, want ErrNotListening", err)
	}
}

func TestGate_StartError(t *testing.T) {
	boom := errors.New("auth failed")
	g := stt.NewGate(&mock.Provider{StartStreamErr: boom}, stt.StreamConfig{})

	err := g.StartListening(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped auth failure", err)
	}
	if g.IsListening() {
		t.Error("gate should stay closed after a failed start")
	}
}

func TestGate_StopError(t *testing.T) {
	boom := errors.New("flush failed")
	g := stt.NewGate(&mock.Provider{Session: &mock.Session{CloseErr: boom}}, stt.StreamConfig{})
	_ = g.StartListening(context.Background())

	if err := g.StopListening(); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped flush failure", err)
	}
	if g.IsListening() {
		t.Error("gate should be closed even when Close fails")
	}
}

func TestSwitch(t *testing.T) {
	s := stt.NewSwitch(false)
	if s.IsListening() {
		t.Fatal("new switch is listening")
	}
	for range 2 {
		if err := s.StartListening(context.Background()); err != nil {
			t.Fatal(err)
		}
		if !s.IsListening() {
			t.Fatal("StartListening did not switch on")
		}
	}
	for range 2 {
		if err := s.StopListening(); err != nil {
			t.Fatal(err)
		}
		if s.IsListening() {
			t.Fatal("StopListening did not switch off")
		}
	}
	if !stt.NewSwitch(true).IsListening() {
		t.Error("NewSwitch(true) not listening")
	}
}
