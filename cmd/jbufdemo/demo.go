// Command jbufdemo exercises the jitter buffer end to end: it captures real
// microphone audio, encodes it with Opus, RTP-sequences it, pushes it through
// a simulated lossy/jittery local channel, and plays the recovered stream
// back out the speakers — so the reordering, loss-concealment, and adaptive
// prefetch behavior of jitterbuf.Buffer are all audible, not just testable.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jbufcore/internal/adapt"
	"jbufcore/internal/config"
	"jbufcore/internal/jitter"
	"jbufcore/jitterbuf"

	"github.com/gordonklaus/portaudio"
)

// simulated network conditions: enough loss and jitter to make the
// jitter buffer's MISSING/reorder handling visible, not so much that
// the demo is unlistenable.
const (
	simLossPercent = 3
	simMaxJitter   = 80 * time.Millisecond

	adaptInterval = 5 * time.Second
	statsInterval = 2 * time.Second
)

func main() {
	if err := portaudio.Initialize(); err != nil {
		log.Fatalf("[jbufdemo] portaudio init: %v", err)
	}
	defer portaudio.Terminate()

	cfg := config.Load()

	ae := NewAudioEngine()
	ae.SetInputDevice(cfg.InputDeviceID)
	ae.SetOutputDevice(cfg.OutputDeviceID)
	ae.SetVolume(cfg.Volume)
	ae.SetAEC(cfg.AECEnabled)
	ae.SetAGC(cfg.AGCEnabled)
	ae.SetNoiseGate(cfg.NoiseEnabled)
	ae.SetPTTMode(cfg.PTTEnabled)
	ae.SetJitterConfig(jitter.Config{
		MaxCount:      cfg.JitterMaxCount,
		InitPrefetch:  cfg.JitterInitPrefetch,
		MinPrefetch:   cfg.JitterMinPrefetch,
		MaxPrefetch:   cfg.JitterMaxPrefetch,
		DiscardPolicy: jitter.ParseDiscardPolicy(cfg.JitterDiscardPolicy),
	})

	if err := ae.Start(); err != nil {
		log.Fatalf("[jbufdemo] start: %v", err)
	}
	log.Println("[jbufdemo] running — speak into the mic; frames travel through a simulated lossy/jittery channel and the jitter buffer before playback")

	sim := networkSim{lossPercent: simLossPercent, maxJitter: simMaxJitter}
	go sim.run(ae, ae.Done())
	go adaptLoop(ae, ae.Done())
	go statsLoop(ae, ae.Done())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("[jbufdemo] shutting down")
	ae.Stop()

	if err := config.Save(cfg); err != nil {
		log.Printf("[jbufdemo] save config: %v", err)
	}
}

// adaptLoop periodically retunes Opus bitrate and jitter buffer depth from
// observed loss and buffered burst level, following the same bitrate-ladder
// and depth-formula heuristics the teacher's adaptBitrateLoop used.
func adaptLoop(ae *AudioEngine, stop <-chan struct{}) {
	ticker := time.NewTicker(adaptInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_, playbackDropped := ae.DroppedFrames()
			// Rough loss estimate: dropped playback frames against the
			// expected frame count for one adaptInterval at 20 ms/frame.
			expected := float64(adaptInterval/(20*time.Millisecond)) + 1
			lossRate := float64(playbackDropped) / expected
			if lossRate > 1 {
				lossRate = 1
			}

			stats := ae.JitterStats()
			burstMs := float64(maxEffLevel(stats)) * 20.0

			depth := adapt.TargetJitterDepth(burstMs, lossRate)
			ae.SetJitterDepth(depth)

			kbps := adapt.NextBitrate(ae.CurrentBitrate(), lossRate, 0)
			ae.SetBitrate(kbps)
			ae.SetPacketLoss(int(lossRate * 100))

			log.Printf("[jbufdemo] adapt: loss=%.1f%% burst=%.0fms depth=%d bitrate=%dkbps",
				lossRate*100, burstMs, depth, kbps)
		}
	}
}

// maxEffLevel returns the highest EffLevel observed across tracked senders,
// used as a proxy for how bursty arrivals have been recently.
func maxEffLevel(stats map[uint16]jitterbuf.Stats) int {
	max := 0
	for _, s := range stats {
		if s.EffLevel > max {
			max = s.EffLevel
		}
	}
	return max
}

// statsLoop logs the jitterbuf.Stats snapshot for visibility — the core
// package never logs internally, so this is the only place Stats surfaces.
func statsLoop(ae *AudioEngine, stop <-chan struct{}) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for id, s := range ae.JitterStats() {
				log.Printf("[jbufdemo] sender=%d status=%s size=%d eff_size=%d discarded=%d prefetch=%d prefetching=%v",
					id, s.Status, s.Size, s.EffSize, s.DiscardedNum, s.Prefetch, s.Prefetching)
			}
		}
	}
}
