package emu

import (
	"sync"
	"time"

	"github.com/cjeanneret/PylonGo/internal/native"
)

// Failed grabs report the code and text of an incompletely grabbed buffer.
const (
	errorCodeIncomplete = 0xE1000014
	errorTextIncomplete = "The buffer was incompletely grabbed. This can be caused by performance problems of the network hardware used, i.e. network adapter, switch, or ethernet cable. To fix this, try increasing the camera's Inter-Packet Delay in the Transport Layer category to reduce the required bandwidth, and adjust the camera's Packet Size setting to the highest supported frame size."
)

// triggerPoll bounds how long the producer waits for a trigger before it
// re-reads the trigger configuration.
const triggerPoll = 50 * time.Millisecond

// buffer is one slot of a session's pool.
type buffer struct {
	sess      *session
	data      []byte
	payload   int
	imageLen  int
	params    frameParams
	blockID   uint64
	timestamp uint64
	failed    bool
}

// session is the state of one StartGrabbing ... StopGrabbing cycle.
type session struct {
	strategy  native.GrabStrategy
	maxImages uint64
	outputCap int
	failEvery uint64
	clear     bool
	chunkMaps bool

	free      []*buffer
	output    []*buffer
	queued    uint64
	blockID   uint64
	acquiring bool

	triggers chan struct{}
	ready    chan struct{}
	stopped  chan struct{}
	done     chan struct{}
}

type grabStats struct {
	total    int64
	failed   int64
	underrun int64
}

type bufferCounts struct {
	free, ready int
}

// grabber is the acquisition engine of one camera object.
type grabber struct {
	cam  *camera
	wait waitObject

	mu           sync.Mutex
	sess         *session
	stats        grabStats
	frameCounter uint64
}

type sessionConfig struct {
	opts       native.StartOptions
	bufferSize int64
	numBuffers int64
	outputCap  int64
	failEvery  uint64
	clear      bool
	chunkMaps  bool
}

func (g *grabber) isGrabbing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sess != nil
}

func (g *grabber) statistics() grabStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

func (g *grabber) counts() bufferCounts {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sess == nil {
		return bufferCounts{}
	}
	return bufferCounts{free: len(g.sess.free), ready: len(g.sess.output)}
}

func (g *grabber) resetStatistics() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stats = grabStats{}
	g.frameCounter = 0
}

// start allocates the buffer pool and launches the producer.
func (g *grabber) start(cfg sessionConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sess != nil {
		panic(native.Runtime("Cannot start grabbing. The camera %s is already grabbing.", g.cam.dev.serial))
	}
	s := &session{
		strategy:  cfg.opts.Strategy,
		outputCap: int(max(cfg.outputCap, 1)),
		failEvery: cfg.failEvery,
		clear:     cfg.clear,
		chunkMaps: cfg.chunkMaps,
		acquiring: true,
		triggers:  make(chan struct{}, 16),
		ready:     make(chan struct{}, 1),
		stopped:   make(chan struct{}),
		done:      make(chan struct{}),
	}
	if !cfg.opts.HasStrategy {
		s.strategy = native.GrabStrategyOneByOne
	}
	if cfg.opts.HasCount {
		if cfg.opts.Count == 0 {
			panic(native.InvalidArgument("The maximum number of images to grab must be greater than zero."))
		}
		s.maxImages = cfg.opts.Count
	}
	for range max(cfg.numBuffers, 1) {
		s.free = append(s.free, &buffer{sess: s, data: make([]byte, cfg.bufferSize)})
	}
	g.sess = s
	g.wait.reset()
	go g.run(s)
}

// stop ends the current session and waits for the producer to exit.
func (g *grabber) stop() {
	g.mu.Lock()
	s := g.sess
	if s == nil {
		g.mu.Unlock()
		panic(native.Runtime("Cannot stop grabbing. The camera %s is not grabbing.", g.cam.dev.serial))
	}
	g.endLocked(s)
	g.mu.Unlock()
	<-s.done
}

// endLocked detaches s and releases every queued buffer. Caller holds g.mu.
func (g *grabber) endLocked(s *session) {
	g.sess = nil
	close(s.stopped)
	s.output = nil
	s.free = nil
	g.wait.reset()
}

func (g *grabber) trigger() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sess == nil {
		return false
	}
	select {
	case g.sess.triggers <- struct{}{}:
		return true
	default:
		return false
	}
}

// release returns b to its session's pool, if that session is still live.
func (g *grabber) release(b *buffer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sess == b.sess {
		b.sess.free = append(b.sess.free, b)
	}
}

// run is the producer goroutine of session s.
func (g *grabber) run(s *session) {
	defer close(s.done)
	d := g.cam.dev
	for {
		d.mu.Lock()
		triggered := d.st.triggerMode == "On"
		period := d.framePeriod()
		d.mu.Unlock()

		if triggered {
			select {
			case <-s.stopped:
				return
			case <-s.triggers:
			case <-time.After(triggerPoll):
				continue
			}
		} else {
			select {
			case <-s.stopped:
				return
			case <-time.After(period):
			}
		}

		d.mu.Lock()
		p := d.snapshot()
		p.timestampNs = d.clock()
		d.mu.Unlock()
		if !g.produce(s, p) {
			return
		}
	}
}

// produce renders one frame into a free buffer and queues it. It reports
// whether acquisition continues.
func (g *grabber) produce(s *session, p frameParams) bool {
	g.mu.Lock()
	if g.sess != s {
		g.mu.Unlock()
		return false
	}
	s.blockID++
	g.frameCounter++
	g.stats.total++
	p.frameCounter = g.frameCounter
	p.clearBuffer = s.clear
	blockID := s.blockID
	if len(s.free) == 0 {
		g.stats.underrun++
		g.mu.Unlock()
		return true
	}
	b := s.free[len(s.free)-1]
	s.free = s.free[:len(s.free)-1]
	failed := s.failEvery > 0 && g.frameCounter%s.failEvery == 0
	if failed {
		g.stats.failed++
	}
	g.mu.Unlock()

	p.truncate = failed
	b.params = p
	b.blockID = blockID
	b.timestamp = p.timestampNs
	b.failed = failed
	b.imageLen = int(p.format.imageSize(p.width, p.height))
	render(b.data, p)
	if failed {
		b.payload = b.imageLen / 2
	} else {
		b.payload = writeChunks(b.data, b.imageLen, p)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sess != s {
		return false
	}
	switch s.strategy {
	case native.GrabStrategyLatestImageOnly:
		s.free = append(s.free, s.output...)
		s.output = s.output[:0]
	case native.GrabStrategyLatestImages:
		for len(s.output) >= s.outputCap {
			s.free = append(s.free, s.output[0])
			s.output = s.output[1:]
		}
	}
	s.output = append(s.output, b)
	s.queued++
	if s.maxImages > 0 && s.queued >= s.maxImages {
		s.acquiring = false
	}
	g.wait.signal()
	select {
	case s.ready <- struct{}{}:
	default:
	}
	return s.acquiring
}

// retrieve waits up to timeoutMs for the next result according to the
// session's strategy and attaches it to res.
func (g *grabber) retrieve(timeoutMs uint32, res *result, th native.TimeoutHandling) bool {
	res.detach()

	var deadline <-chan time.Time
	if timeoutMs != native.Infinite && timeoutMs > 0 {
		t := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
		defer t.Stop()
		deadline = t.C
	}

	g.mu.Lock()
	s := g.sess
	if s != nil && s.strategy == native.GrabStrategyUpcomingImage && s.acquiring {
		s.free = append(s.free, s.output...)
		s.output = s.output[:0]
		g.wait.reset()
	}
	for {
		if s == nil || g.sess != s {
			g.mu.Unlock()
			return timedOut(th, timeoutMs)
		}
		if len(s.output) > 0 {
			b := s.output[0]
			s.output = s.output[1:]
			if len(s.output) == 0 {
				g.wait.reset()
				if !s.acquiring {
					// The last counted image has been retrieved.
					g.endLocked(s)
				}
			}
			g.mu.Unlock()
			res.attach(g, b)
			return true
		}
		if timeoutMs == 0 {
			g.mu.Unlock()
			return timedOut(th, timeoutMs)
		}
		g.mu.Unlock()
		select {
		case <-s.ready:
		case <-s.stopped:
		case <-deadline:
			g.mu.Lock()
			if g.sess == s && len(s.output) > 0 {
				continue
			}
			g.mu.Unlock()
			return timedOut(th, timeoutMs)
		}
		g.mu.Lock()
	}
}

func timedOut(th native.TimeoutHandling, timeoutMs uint32) bool {
	if th == native.TimeoutHandlingThrowException {
		panic(native.Timeout("Grab timed out. The result was not available within %d ms.", timeoutMs))
	}
	return false
}
