package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/iti/rngstream"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"ransim/internal/metrics"
)

// pagingSteps is the number of paging-delay multiples drawn from.
const pagingSteps = 6

type Config struct {
	ID         int
	Capacity   int
	Terminals  int
	PagingStep time.Duration
	Tick       time.Duration
}

// Amf is one registrar instance. Its per-terminal table is indexed by the
// terminal id carried in relayed requests.
type Amf struct {
	ID       int
	AmfName  string
	Capacity int

	mu     sync.Mutex
	load   int
	ues    []AmfUE
	paging pagingQueue

	pagingStep time.Duration
	tick       time.Duration

	clock   clock.WithTicker
	rng     *rngstream.RngStream
	log     *zap.Logger
	metrics *metrics.Metrics
	label   string
}

type AmfUE struct {
	Registered  bool
	TemporaryID uint64
	// AttachTime is zeroed once the terminal was paged or came back on its own.
	AttachTime  time.Time
	PagingDelay time.Duration
}

func New(cfg Config, clk clock.WithTicker, logger *zap.Logger, m *metrics.Metrics) *Amf {
	name := fmt.Sprintf("AMF%d", cfg.ID+1)
	a := &Amf{
		ID:         cfg.ID,
		AmfName:    name,
		Capacity:   cfg.Capacity,
		ues:        make([]AmfUE, cfg.Terminals),
		pagingStep: cfg.PagingStep,
		tick:       cfg.Tick,
		clock:      clk,
		rng:        rngstream.New(name),
		log:        logger.Named("amf").With(zap.Int("amf", cfg.ID)),
		metrics:    m,
		label:      metrics.AmfLabel(cfg.ID),
	}
	m.AmfCapacity.WithLabelValues(a.label).Set(float64(cfg.Capacity))
	m.AmfLoad.WithLabelValues(a.label).Set(0)
	return a
}

func (a *Amf) Load() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.load
}

// UE returns a copy of the registrar entry for terminal id.
func (a *Amf) UE(id int) (AmfUE, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id < 0 || id >= len(a.ues) {
		return AmfUE{}, false
	}
	return a.ues[id], true
}

func (a *Amf) drawPagingDelay() time.Duration {
	n := a.rng.RandInt(1, pagingSteps)
	if n < 1 {
		n = 1
	} else if n > pagingSteps {
		n = pagingSteps
	}
	return time.Duration(n) * a.pagingStep
}
