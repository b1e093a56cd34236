// Run the forge worker. Configure the following environment variables:
//
// DATABASE_URL: Postgres connection string
// PG_WORKER_POOL_SIZE: Maximum number of database connections from this process
// ARTIFACT_BUCKET: S3 bucket for produced artifacts (ARTIFACT_DIR to use disk)
// BUILD_CONCURRENCY: Number of runners per build kind
//
// CreatePools starts one pool of runners per registered build kind; each
// runner polls for ready pending builds, runs the backend, and records the
// outcome on the job.

package forge

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Shyp/go-simple-metrics"
	"github.com/forgehq/forge/artifacts"
	"github.com/forgehq/forge/backend"
	"github.com/forgehq/forge/backend/gamescene"
	"github.com/forgehq/forge/backend/mobile"
	"github.com/forgehq/forge/config"
	"github.com/forgehq/forge/models"
	"github.com/forgehq/forge/queue"
	"github.com/forgehq/forge/setup"
)

var workerDbConns int

func init() {
	var err error
	workerDbConns, err = config.GetInt("PG_WORKER_POOL_SIZE")
	if err != nil {
		log.Printf("Error getting database pool size: %s. Defaulting to 20", err)
		workerDbConns = 20
	}

	metrics.Namespace = "forge.worker"
}

func Example_worker() {
	store, err := setup.DB(setup.DefaultConnection, workerDbConns)
	if err != nil {
		log.Fatal(err)
	}

	metrics.Start("worker")

	go setup.MeasureActiveQueries(1 * time.Second)
	go setup.MeasureQueueDepth(store, 5*time.Second)
	go setup.MeasureInProgressBuilds(store, 1*time.Second)

	artifactStore := artifacts.NewDir("artifacts")
	backends := backend.NewRegistry()
	backends.Register(models.KindMobilePackage, mobile.New(artifactStore))
	backends.Register(models.KindGameScene, gamescene.New(artifactStore))

	p := queue.NewProcessor(store, backends)

	// Every minute, check for running builds that haven't been updated for
	// 7 minutes, and record a failed attempt for them.
	go p.WatchStuckBuilds(1*time.Minute, 7*time.Minute)

	pools, err := queue.CreatePools(store, backends, p, 4)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("Started %d runners", pools.NumRunners())

	sigterm := make(chan os.Signal, 1)
	signal.Notify(sigterm, syscall.SIGTERM)
	sig := <-sigterm
	fmt.Printf("Caught signal %v, shutting down...\n", sig)
	var wg sync.WaitGroup
	for _, p := range pools {
		wg.Add(1)
		go func(p *queue.Pool) {
			if err := p.Shutdown(); err != nil {
				log.Printf("Error shutting down pool: %s\n", err.Error())
			}
			wg.Done()
		}(p)
	}
	wg.Wait()
	fmt.Println("All pools shut down. Quitting.")
}
