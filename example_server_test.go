// Run the forge server.
//
// All of the project defaults are used. There is one authenticated user for
// basic auth, the user is "test" and the password is "forgeahead". You will
// want to copy this binary and add your own authentication scheme.
package forge

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/Shyp/go-simple-metrics"
	"github.com/forgehq/forge/artifacts"
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

var serverDbConns int

func init() {
	var err error
	serverDbConns, err = config.GetInt("PG_SERVER_POOL_SIZE")
	if err != nil {
		log.Printf("Error getting database pool size: %s. Defaulting to 10", err)
		serverDbConns = 10
	}

	metrics.Namespace = "forge.server"

	// Change this user to a private value
	server.AddUser("test", "forgeahead")
}

func Example_server() {
	store, err := setup.DB(setup.DefaultConnection, serverDbConns)
	if err != nil {
		log.Fatal(err)
	}

	metrics.Start("web")

	go setup.MeasureActiveQueries(5 * time.Second)

	backends := backend.NewRegistry()
	backends.Register(models.KindMobilePackage, mobile.New(artifacts.NewDir("artifacts")))
	backends.Register(models.KindGameScene, gamescene.New(artifacts.NewDir("artifacts")))
	q := queue.New(store, backends)

	log.Println("Listening on port 9090")
	log.Fatal(http.ListenAndServe(":9090", handlers.LoggingHandler(os.Stdout, server.Get(server.DefaultAuthorizer, q))))
}
