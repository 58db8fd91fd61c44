package telemetry

import (
	"context"
	"math/rand"
	"time"

	"github.com/temoto/alive/v2"
	"github.com/temoto/fridgesim/helpers"
	"github.com/temoto/fridgesim/internal/session"
	"github.com/temoto/fridgesim/internal/stat"
	"github.com/temoto/fridgesim/internal/wire"
	"github.com/temoto/fridgesim/log2"
)

const (
	DefaultTick            = 500 * time.Millisecond
	DefaultActivationRetry = 10 * time.Second
	DefaultNoticeInterval  = 10
)

var pollAliases = []string{AliasUnderPressure, AliasOverPressure}

type Options struct {
	Session *session.Session
	Tick    time.Duration
	// false: plain read every tick
	LongPoll        bool
	ActivationRetry time.Duration
	// seconds of uptime between "needs activation" notices
	NoticeInterval int
	Clamp          ClampPolicy
	Rand           *rand.Rand
	State          *SensorState
	Alive          *alive.Alive
	Log            *log2.Log
	Stat           *stat.Stat
}

type Loop struct {
	s        *session.Session
	tick     time.Duration
	longPoll bool
	notice   int
	clamp    ClampPolicy
	rnd      *rand.Rand
	state    *SensorState
	backoff  helpers.Backoff
	alive    *alive.Alive
	log      *log2.Log
	stat     *stat.Stat

	start time.Time
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

func NewLoop(opt Options) *Loop {
	if opt.Session == nil {
		panic("code error telemetry.Options.Session=nil")
	}
	if opt.Tick <= 0 {
		opt.Tick = DefaultTick
	}
	if opt.ActivationRetry <= 0 {
		opt.ActivationRetry = DefaultActivationRetry
	}
	if opt.NoticeInterval <= 0 {
		opt.NoticeInterval = DefaultNoticeInterval
	}
	if opt.Clamp == "" {
		opt.Clamp = ClampStrict
	}
	if opt.Rand == nil {
		opt.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opt.State == nil {
		opt.State = NewSensorState()
	}
	l := &Loop{
		s:        opt.Session,
		tick:     opt.Tick,
		longPoll: opt.LongPoll,
		notice:   opt.NoticeInterval,
		clamp:    opt.Clamp,
		rnd:      opt.Rand,
		state:    opt.State,
		backoff: helpers.Backoff{
			Min: opt.ActivationRetry,
			Max: opt.ActivationRetry,
			K:   1,
			Log: opt.Log,
		},
		alive: opt.Alive,
		log:   opt.Log,
		stat:  opt.Stat,
		now:   time.Now,
	}
	l.sleep = l.sleepInterruptible
	return l
}

func (l *Loop) State() *SensorState { return l.state }

// Run ticks until ctx is done or alive is stopped.
// Session is expected to be bootstrapped, otherwise first tick activates.
func (l *Loop) Run(ctx context.Context) error {
	if l.alive != nil {
		if !l.alive.Add(1) {
			return nil
		}
		defer l.alive.Done()
	}
	l.log.Infof("starting main loop tick=%s long_poll=%t", l.tick, l.longPoll)
	for l.running(ctx) {
		delay := l.Tick(ctx)
		if !l.sleep(ctx, delay+l.tick) {
			break
		}
	}
	l.log.Infof("main loop stopped")
	return ctx.Err()
}

// Tick is one loop iteration. Returned delay is extra wait before next tick,
// non-zero after failed activation and while waiting to retry it.
func (l *Loop) Tick(ctx context.Context) time.Duration {
	if l.start.IsZero() {
		l.start = l.now()
	}
	uptime := int(l.now().Sub(l.start) / time.Second)
	l.state.Uptime = uptime
	l.stat.Tick()

	if l.s.Ready() {
		l.log.Infof("Connection: Connected, Run Time: %5d", uptime)
		l.report(ctx)
	}

	if !l.s.Ready() {
		// ticks driven faster than retry interval must not hammer activate
		if wait := l.backoff.DelayBefore(); wait > 0 {
			return wait
		}
		if uptime%l.notice == 0 {
			l.log.Infof("device cik may be expired or not available (not added to product), trying to activate")
		}
		o := l.s.Reactivate(ctx)
		if !l.s.Ready() {
			l.backoff.Failure()
			delay := l.backoff.DelayBefore()
			l.log.Debugf("activation outcome=%s retry in %s", o, delay)
			return delay
		}
		l.backoff.Reset()
	}
	return 0
}

func (l *Loop) report(ctx context.Context) {
	for _, alias := range pollAliases {
		o := l.read(ctx, alias)
		switch o.Kind {
		case session.Success:
			v, ok := wire.ParseAliasValue(o.Payload, alias)
			if !ok {
				l.log.Errorf("read alias=%s unexpected body=%q", alias, o.Payload)
				continue
			}
			if err := l.state.SetInput(alias, v); err != nil {
				l.log.Errorf("read alias=%s err=%v", alias, err)
				continue
			}
			l.log.Infof("%s value: %s", alias, v)
		case session.NotModified:
		case session.AuthFailure:
			return
		}
	}

	l.state.Walk(l.rnd, l.clamp)
	l.log.Debugf("write %s", l.state)
	l.s.Write(ctx, l.state.Encode())
}

func (l *Loop) read(ctx context.Context, alias string) session.Outcome {
	if l.longPoll {
		return l.s.Poll(ctx, alias)
	}
	return l.s.Read(ctx, alias)
}

func (l *Loop) running(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	return l.alive == nil || l.alive.IsRunning()
}

func (l *Loop) sleepInterruptible(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	var stopch <-chan struct{}
	if l.alive != nil {
		stopch = l.alive.StopChan()
	}
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-stopch:
		return false
	}
}
