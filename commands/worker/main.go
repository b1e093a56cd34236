// Run builds.
package main

import (
	"context"
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
	"github.com/forgehq/forge/backend/remote"
	"github.com/forgehq/forge/config"
	"github.com/forgehq/forge/models"
	"github.com/forgehq/forge/queue"
	"github.com/forgehq/forge/setup"
)

func checkError(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

// getArtifactStore picks the artifact store from the environment: an S3
// bucket if ARTIFACT_BUCKET is set, a local directory otherwise.
func getArtifactStore() (artifacts.Store, error) {
	if bucket := os.Getenv("ARTIFACT_BUCKET"); bucket != "" {
		return artifacts.NewS3(context.Background(), bucket)
	}
	dir := os.Getenv("ARTIFACT_DIR")
	if dir == "" {
		dir = "artifacts"
	}
	return artifacts.NewDir(dir), nil
}

func getBackends() (*backend.Registry, error) {
	backends := backend.NewRegistry()
	if remoteUrl := os.Getenv("REMOTE_BUILDER_URL"); remoteUrl != "" {
		// All builds run on a remote builder fleet.
		password := os.Getenv("REMOTE_BUILDER_AUTH")
		if password == "" {
			log.Printf("No REMOTE_BUILDER_AUTH configured, setting an empty password for auth")
		}
		b := remote.NewBuilder(remoteUrl, password)
		backends.Register(models.KindMobilePackage, b)
		backends.Register(models.KindGameScene, b)
		return backends, nil
	}
	store, err := getArtifactStore()
	if err != nil {
		return nil, err
	}
	backends.Register(models.KindMobilePackage, &mobile.Packager{Artifacts: store})
	backends.Register(models.KindGameScene, &gamescene.Generator{Artifacts: store})
	return backends, nil
}

func main() {
	dbConns, err := config.GetInt("PG_WORKER_POOL_SIZE")
	if err != nil {
		log.Printf("Error getting database pool size: %s. Defaulting to 20", err)
		dbConns = 20
	}

	store, err := setup.DB(setup.DefaultConnection, dbConns)
	checkError(err)

	go setup.MeasureActiveQueries(1 * time.Second)
	go setup.MeasureQueueDepth(store, 5*time.Second)
	go setup.MeasureInProgressBuilds(store, 1*time.Second)

	// We may make a lot of requests to the same remote builder.
	httpConns, err := config.GetInt("HTTP_MAX_IDLE_CONNS")
	if err == nil {
		config.SetMaxIdleConnsPerHost(httpConns)
	} else {
		config.SetMaxIdleConnsPerHost(100)
	}

	metrics.Namespace = "forge.worker"
	metrics.Start("worker")

	backends, err := getBackends()
	checkError(err)

	p := queue.NewProcessor(store, backends)

	// Every minute, check for running builds that haven't been updated for
	// 7 minutes, and record a failed attempt for them.
	go p.WatchStuckBuilds(1*time.Minute, 7*time.Minute)

	concurrency, err := config.GetInt("BUILD_CONCURRENCY")
	if err != nil {
		concurrency = 4
	}

	// This creates one pool of runners per registered kind and starts them.
	pools, err := queue.CreatePools(store, backends, p, concurrency)
	checkError(err)
	log.Printf("Started %d runners across %d pools", pools.NumRunners(), len(pools))

	sigterm := make(chan os.Signal, 1)
	signal.Notify(sigterm, syscall.SIGTERM)
	sig := <-sigterm
	fmt.Printf("Caught signal %v, shutting down...\n", sig)
	var wg sync.WaitGroup
	for _, p := range pools {
		if p != nil {
			wg.Add(1)
			go func(p *queue.Pool) {
				err = p.Shutdown()
				if err != nil {
					log.Printf("Error shutting down pool: %s\n", err.Error())
				}
				wg.Done()
			}(p)
		}
	}
	wg.Wait()
	fmt.Println("All pools shut down. Quitting.")
}
