package eventbus

import (
	"sync"
	"sync/atomic"

	evbus "github.com/asaskevich/EventBus"

	"moodify-server-go/internal/platform/logging"
)

// AsyncEventBus delivers published events on a fixed pool of workers so that
// producers on the request path never wait for subscribers.
type AsyncEventBus struct {
	bus       evbus.Bus
	logger    *logging.Logger
	workerNum int
	workChan  chan asyncEvent
	stopChan  chan struct{}
	wg        sync.WaitGroup
	pending   sync.WaitGroup
	dropped   atomic.Int64
	stopOnce  sync.Once

	// mu orders Publish against Stop so pending.Add never races pending.Wait.
	mu      sync.RWMutex
	stopped bool
}

type asyncEvent struct {
	topic string
	args  []interface{}
}

// NewAsyncEventBus creates a bus with workerNum workers and a bounded queue.
func NewAsyncEventBus(workerNum int, logger *logging.Logger) *AsyncEventBus {
	if workerNum <= 0 {
		workerNum = 4
	}
	return &AsyncEventBus{
		bus:       evbus.New(),
		logger:    logger,
		workerNum: workerNum,
		workChan:  make(chan asyncEvent, 1000),
		stopChan:  make(chan struct{}),
	}
}

// Start launches the workers.
func (aeb *AsyncEventBus) Start() {
	for i := 0; i < aeb.workerNum; i++ {
		aeb.wg.Add(1)
		go aeb.worker()
	}
}

// Stop drains queued events and waits for the workers to exit. Events
// published afterwards are discarded.
func (aeb *AsyncEventBus) Stop() {
	aeb.stopOnce.Do(func() {
		aeb.mu.Lock()
		aeb.stopped = true
		aeb.mu.Unlock()

		aeb.pending.Wait()
		close(aeb.stopChan)
		aeb.wg.Wait()
	})
}

func (aeb *AsyncEventBus) worker() {
	defer aeb.wg.Done()

	for {
		select {
		case <-aeb.stopChan:
			return
		case event := <-aeb.workChan:
			aeb.deliver(event)
		}
	}
}

func (aeb *AsyncEventBus) deliver(event asyncEvent) {
	defer aeb.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			aeb.logger.ErrorTag("AUDIT", "subscriber panic on %s: %v", event.topic, r)
		}
	}()
	aeb.bus.Publish(event.topic, event.args...)
}

// Publish queues the event. When the queue is full the event is dropped and counted.
func (aeb *AsyncEventBus) Publish(topic string, args ...interface{}) {
	aeb.mu.RLock()
	defer aeb.mu.RUnlock()
	if aeb.stopped {
		return
	}
	aeb.pending.Add(1)
	select {
	case aeb.workChan <- asyncEvent{topic: topic, args: args}:
	default:
		aeb.pending.Done()
		aeb.dropped.Add(1)
		aeb.logger.WarnTag("AUDIT", "event queue full, dropped %s", topic)
	}
}

func (aeb *AsyncEventBus) Subscribe(topic string, fn interface{}) error {
	return aeb.bus.Subscribe(topic, fn)
}

func (aeb *AsyncEventBus) Unsubscribe(topic string, handler interface{}) error {
	return aeb.bus.Unsubscribe(topic, handler)
}

func (aeb *AsyncEventBus) HasCallback(topic string) bool {
	return aeb.bus.HasCallback(topic)
}

// Dropped returns how many events were discarded because the queue was full.
func (aeb *AsyncEventBus) Dropped() int64 {
	return aeb.dropped.Load()
}

// WaitAsync blocks until every queued event has been delivered.
func (aeb *AsyncEventBus) WaitAsync() {
	aeb.pending.Wait()
}
