package app

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/elparko/CaseTracker/internal/audio"
	"github.com/elparko/CaseTracker/internal/daemon"
	"github.com/elparko/CaseTracker/internal/workflow"

	tea "github.com/charmbracelet/bubbletea"
)

// TestLiveCaptureFlow records through a running capture daemon and walks the
// screen from Idle to Reviewing. Skipped if the daemon isn't running.
func TestLiveCaptureFlow(t *testing.T) {
	sockPath := daemon.SocketPath()
	if _, err := os.Stat(sockPath); os.IsNotExist(err) {
		t.Skip("daemon not running")
	}

	capture := audio.NewCapture(audio.DaemonDevice{SocketPath: sockPath}, nil)
	store := &fakeCases{}
	m := New(Deps{
		Cases: store,
		NewSession: func() *workflow.Session {
			return workflow.NewSession(workflow.Deps{
				Recorder:    capture,
				Transcriber: fakeTranscriber{text: "live capture"},
				Analyzer:    fakeAnalyzer{},
				Cases:       store,
			})
		},
		Meter:  capture,
		Device: "daemon",
	})

	m, _ = applyUpdate(m, tea.WindowSizeMsg{Width: 120, Height: 40})
	if view := m.View(); view == "Initializing..." {
		t.Error("view should render after WindowSizeMsg")
	}

	m = press(t, m, spaceKey)
	if m.snap.State != workflow.Recording {
		t.Fatalf("state = %v (err %q), want recording", m.snap.State, m.errorMessage)
	}

	// Sample levels for two seconds
	var peak float32
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m, _ = applyUpdate(m, LevelTickMsg{})
		if m.level > peak {
			peak = m.level
		}
		time.Sleep(100 * time.Millisecond)
	}
	fmt.Println("=== Recording View ===")
	fmt.Println(m.View())
	fmt.Printf("peak level: %.2f elapsed: %v\n", peak, m.elapsed)

	m = press(t, m, spaceKey)
	if m.snap.State != workflow.Recorded {
		t.Fatalf("state = %v (err %q), want recorded", m.snap.State, m.errorMessage)
	}
	if !m.snap.HasAudio {
		t.Error("expected a recording from the daemon")
	}

	m = press(t, m, runes(KeyTranscribe))
	if m.snap.State != workflow.Reviewing {
		t.Fatalf("state = %v, want reviewing", m.snap.State)
	}
	fmt.Println("\n=== Review View ===")
	fmt.Println(m.View())

	m, _ = applyUpdate(m, runes(KeyDiscard))
	if m.snap.State != workflow.Discarded {
		t.Errorf("state = %v, want discarded", m.snap.State)
	}
}
