package hub

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// CycleObserver receives the outcome of every completed cycle. The
// root main uses it to drive the prometheus gauges.
type CycleObserver func(batch []Reading, res PublishResult)

// Scheduler drives the whole pipeline: wait for the link, read every
// active sensor, hand the batch to the publish channel, sleep, repeat.
// One sequential flow; nothing here runs concurrently.
type Scheduler struct {
	registry *Registry
	dispatch *Dispatch
	link     *LinkManager
	channel  *PublishChannel
	interval time.Duration
	observer CycleObserver
	sleep    func(time.Duration)
}

func NewScheduler(reg *Registry, dispatch *Dispatch, link *LinkManager, channel *PublishChannel, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		registry: reg,
		dispatch: dispatch,
		link:     link,
		channel:  channel,
		interval: interval,
		sleep:    time.Sleep,
	}
}

// OnCycle registers a hook invoked after every cycle. Set it before
// Run.
func (s *Scheduler) OnCycle(fn CycleObserver) {
	s.observer = fn
}

// Run loops until ctx is cancelled. Cancellation is only honored
// between phases; a cycle in flight always completes. The sleep
// interval is measured from the end of publishing, not wall-clock
// cadence, so drift under poor connectivity is expected.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Infof("starting sensor loop, interval %s", s.interval)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Cycle(ctx); err != nil {
			return err
		}
		s.sleep(s.interval)
	}
}

// Cycle runs one read-and-publish pass. It only fails when ctx is
// cancelled while waiting for the link; every other fault is absorbed
// by the component that owns it. A cycle with zero active sensors
// completes normally with an empty batch.
func (s *Scheduler) Cycle(ctx context.Context) error {
	if err := s.link.WaitUntilConnected(ctx); err != nil {
		return err
	}

	batch := s.dispatch.Collect(s.registry)

	res := s.channel.Publish(batch)
	if res.Err != nil {
		log.Warnf("publish failed, dropping batch of %d: %s", len(batch), res.Err)
	} else {
		log.Infof("published %d readings", res.Published)
	}

	if s.observer != nil {
		s.observer(batch, res)
	}
	return nil
}
