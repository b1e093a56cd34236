// Run the forge API server.
//
// All of the project defaults are used. There is one authenticated user for
// basic auth, the user is "test" and the password is "forgeahead". You will
// want to copy this binary and add your own authentication scheme.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/Shyp/go-simple-metrics"
	"github.com/forgehq/forge/backend"
	"github.com/forgehq/forge/backend/gamescene"
	"github.com/forgehq/forge/backend/mobile"
	"github.com/forgehq/forge/config"
	"github.com/forgehq/forge/models"
	"github.com/forgehq/forge/queue"
	"github.com/forgehq/forge/server"
	"github.com/forgehq/forge/setup"
	"github.com/gorilla/handlers"
)

func configure() (http.Handler, error) {
	dbConns, err := config.GetInt("PG_SERVER_POOL_SIZE")
	if err != nil {
		log.Printf("Error getting database pool size: %s. Defaulting to 10", err)
		dbConns = 10
	}

	store, err := setup.DB(setup.DefaultConnection, dbConns)
	if err != nil {
		return nil, err
	}

	metrics.Namespace = "forge.server"
	metrics.Start("web")

	go setup.MeasureActiveQueries(5 * time.Second)

	// The server only validates kinds against the registry, it never runs a
	// build itself. Artifact stores live on the worker.
	backends := backend.NewRegistry()
	backends.Register(models.KindMobilePackage, &mobile.Packager{})
	backends.Register(models.KindGameScene, &gamescene.Generator{})

	q := queue.New(store, backends)

	// If you run this in production, change this user.
	server.AddUser("test", "forgeahead")
	return server.Get(server.DefaultAuthorizer, q), nil
}

func main() {
	s, err := configure()
	if err != nil {
		log.Fatal(err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "9090"
	}
	log.Printf("Listening on port %s\n", port)
	log.Fatal(http.ListenAndServe(fmt.Sprintf(":%s", port), handlers.LoggingHandler(os.Stdout, s)))
}
