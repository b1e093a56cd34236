package queue

import (
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	dberror "github.com/Shyp/go-dberror"
	"github.com/Shyp/go-simple-metrics"
	"github.com/forgehq/forge/backend"
	"github.com/forgehq/forge/models"
	"github.com/forgehq/forge/storage"
)

const defaultSleepFactor = 2

// 10ms * 2^10 ~ 10 seconds between acquire attempts
var maxMultiplier = math.Pow(2, 10)

// A Worker does some work with an acquired BuildJob. Worker implementations
// may be shared and should be threadsafe.
//
// DoBuild is expected to record the outcome of the build on the job record;
// its error return is for recording failures only, which are logged and
// otherwise ignored.
type Worker interface {
	DoBuild(*models.BuildJob) error
}

// A Pool contains a set of runners, all of which execute builds of the same
// kind.
type Pool struct {
	Runners                []*Runner
	Kind                   models.BuildKind
	store                  storage.Store
	receivedShutdownSignal bool
	mu                     sync.Mutex
	wg                     sync.WaitGroup
}

func NewPool(store storage.Store, kind models.BuildKind) *Pool {
	return &Pool{
		Kind:  kind,
		store: store,
	}
}

type Pools []*Pool

// NumRunners returns the total number of runners across all pools.
func (ps Pools) NumRunners() int {
	count := 0
	for _, pool := range ps {
		count += len(pool.Runners)
	}
	return count
}

// CreatePools creates one pool per registered build kind, each with
// concurrency runners. The provided Worker w is shared between all runners,
// so it must be threadsafe.
func CreatePools(store storage.Store, backends *backend.Registry, w Worker, concurrency int) (Pools, error) {
	kinds := backends.Kinds()
	pools := make([]*Pool, len(kinds))
	for i, kind := range kinds {
		p := NewPool(store, kind)
		for j := 0; j < concurrency; j++ {
			if err := p.AddRunner(w); err != nil {
				return Pools{}, err
			}
		}
		pools[i] = p
	}
	return pools, nil
}

type Runner struct {
	Id       int
	QuitChan chan bool
	W        Worker
	// How long to sleep if there is no work to do.
	sleepFactor float64
}

var emptyPool = errors.New("No runners left in the pool")
var poolShutdown = errors.New("Cannot add runner because the pool is shutting down")

// AddRunner adds a Runner to the Pool. w is the work the Runner will do with
// an acquired job.
func (p *Pool) AddRunner(w Worker) error {
	if p.receivedShutdownSignal {
		return poolShutdown
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	r := &Runner{
		Id:          len(p.Runners) + 1,
		QuitChan:    make(chan bool, 1),
		W:           w,
		sleepFactor: defaultSleepFactor,
	}
	p.Runners = append(p.Runners, r)
	p.wg.Add(1)
	go r.Work(p.store, p.Kind, &p.wg)
	return nil
}

// RemoveRunner removes a runner from the pool and sends that runner a
// shutdown signal.
func (p *Pool) RemoveRunner() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Runners) == 0 {
		return emptyPool
	}
	r := p.Runners[0]
	p.Runners = append(p.Runners[:0], p.Runners[1:]...)
	r.QuitChan <- true
	close(r.QuitChan)
	return nil
}

// Shutdown all runners in the pool and wait for them to finish their current
// build.
func (p *Pool) Shutdown() error {
	p.receivedShutdownSignal = true
	l := len(p.Runners)
	for i := 0; i < l; i++ {
		if err := p.RemoveRunner(); err != nil {
			return err
		}
	}
	p.wg.Wait()
	return nil
}

// Jitter returns a value that's around the given val, but not exactly it. The
// jitter is randomly chosen between 0.8 and 1.2 times the given value, evenly
// distributed.
func jitter(val float64) float64 {
	return val*0.8 + rand.Float64()*0.2*2*val
}

func (r *Runner) Work(store storage.Store, kind models.BuildKind, wg *sync.WaitGroup) {
	defer wg.Done()
	failedAcquireCount := 0
	waitDuration := time.Duration(jitter(float64(50 * time.Millisecond)))
	for {
		select {
		case <-r.QuitChan:
			log.Printf("%s runner %d quitting\n", kind, r.Id)
			return

		case <-time.After(waitDuration):
			start := time.Now()
			job, err := store.Acquire(kind)
			go metrics.Time("acquire.latency", time.Since(start))
			if err == nil {
				failedAcquireCount = 0
				waitDuration = time.Duration(0)
				if err := r.W.DoBuild(job); err != nil {
					log.Printf("runner: Error processing build %s: %s", job.ID.String(), err)
					go metrics.Increment(fmt.Sprintf("acquire.%s.error", kind))
				} else {
					go metrics.Increment(fmt.Sprintf("acquire.%s.success", kind))
				}
				continue
			}
			dberr, ok := err.(*dberror.Error)
			if ok && dberr.Code == dberror.CodeLockNotAvailable {
				// A row was ready but another runner got the lock first.
				// Don't sleep at all.
				go metrics.Increment(fmt.Sprintf("acquire.%s.nowait", kind))
				failedAcquireCount = 0
				waitDuration = time.Duration(0)
				continue
			}

			failedAcquireCount++
			multiplier := math.Pow(r.sleepFactor, float64(failedAcquireCount))
			if multiplier > maxMultiplier {
				multiplier = maxMultiplier
			}
			multiplier = jitter(multiplier)
			waitDuration = 10 * time.Duration(multiplier) * time.Millisecond
		}
	}
}
