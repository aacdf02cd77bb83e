package main

import (
	"math/rand"
	"time"
)

// networkSim stands in for the network path the teacher's gorilla/websocket
// transport used to occupy: it shuffles CaptureOut into PlaybackIn with
// random per-frame delay and occasional drops, so the demo's jitter buffer
// actually has reordering and loss to absorb instead of a pristine loopback.
type networkSim struct {
	lossPercent int           // [0, 100]: chance a frame never arrives
	maxJitter   time.Duration // upper bound on simulated per-frame delay
}

// run drains ae.CaptureOut until stop is closed, delivering each surviving
// frame to ae.PlaybackIn after a random delay in [0, maxJitter]. Frames are
// dispatched on their own goroutine so that delay jitter can reorder them
// relative to send order, mirroring real network behavior.
func (n networkSim) run(ae *AudioEngine, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case tagged, ok := <-ae.CaptureOut:
			if !ok {
				return
			}
			if n.lossPercent > 0 && rand.Intn(100) < n.lossPercent {
				continue
			}
			delay := time.Duration(0)
			if n.maxJitter > 0 {
				delay = time.Duration(rand.Int63n(int64(n.maxJitter) + 1))
			}
			go n.deliver(ae, tagged, delay)
		}
	}
}

func (n networkSim) deliver(ae *AudioEngine, tagged TaggedAudio, delay time.Duration) {
	if delay > 0 {
		time.Sleep(delay)
	}
	select {
	case ae.PlaybackIn <- tagged:
	default:
		ae.AddPlaybackDrop()
	}
}
