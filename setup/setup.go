// Setup helps initialize applications.
package setup

import (
	"database/sql"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/Shyp/go-simple-metrics"
	"github.com/forgehq/forge/models"
	"github.com/forgehq/forge/storage"
	"github.com/forgehq/forge/storage/pgstore"
	_ "github.com/lib/pq"
)

var mu sync.Mutex

// Conn is the shared database connection, populated by DB.
var Conn *sql.DB

// A Connector establishes a database connection with the given number of
// connections and stores the result in conn.
type Connector interface {
	Connect(conn *sql.DB, dbConns int) error
}

// DefaultConnection connects to a Postgres database using the DATABASE_URL
// environment variable.
var DefaultConnection = &DatabaseURLConnector{}

// DatabaseURLConnector connects to the database using the DATABASE_URL
// environment variable.
type DatabaseURLConnector struct {
	mu sync.Mutex
}

// Connect to the database using the DATABASE_URL environment variable with the
// given number of database connections, and store the result in conn.
func (dc *DatabaseURLConnector) Connect(conn *sql.DB, dbConns int) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if conn == nil {
		return errors.New("setup: Cannot assign to nil conn")
	}
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return errors.New("setup: No value provided for DATABASE_URL, cannot connect")
	}
	d, err := sql.Open("postgres", url)
	if err != nil {
		return err
	}
	d.SetMaxOpenConns(dbConns)
	if dbConns > 100 {
		d.SetMaxIdleConns(dbConns - 20)
	} else if dbConns > 50 {
		d.SetMaxIdleConns(dbConns - 10)
	} else if dbConns > 10 {
		d.SetMaxIdleConns(dbConns - 3)
	} else if dbConns > 5 {
		d.SetMaxIdleConns(dbConns - 2)
	}
	*conn = *d
	return nil
}

// DB initializes the shared database connection and returns a Store with all
// queries prepared against it.
func DB(connector Connector, dbConns int) (*pgstore.PG, error) {
	mu.Lock()
	defer mu.Unlock()
	if Conn == nil {
		Conn = &sql.DB{}
	} else {
		if err := Conn.Ping(); err == nil {
			// Already connected.
			return pgstore.New(Conn)
		}
	}
	if err := connector.Connect(Conn, dbConns); err != nil {
		return nil, errors.New("Could not establish a database connection: " + err.Error())
	}
	if err := Conn.Ping(); err != nil {
		return nil, errors.New("Could not establish a database connection: " + err.Error())
	}
	return pgstore.New(Conn)
}

// MeasureQueueDepth reports the number of pending builds on an interval.
func MeasureQueueDepth(store storage.Store, interval time.Duration) {
	for range time.Tick(interval) {
		count, err := store.CountByStatus(models.StatusPending)
		if err == nil {
			go metrics.Measure("queue_depth.pending", count)
		} else {
			go metrics.Increment("queue_depth.error")
		}
	}
}

// MeasureInProgressBuilds reports the number of running builds on an interval.
func MeasureInProgressBuilds(store storage.Store, interval time.Duration) {
	for range time.Tick(interval) {
		count, err := store.CountByStatus(models.StatusRunning)
		if err == nil {
			go metrics.Measure("builds.in_progress", count)
		} else {
			go metrics.Increment("builds.in_progress.error")
		}
	}
}

// MeasureActiveQueries reports the number of active Postgres queries on an
// interval.
func MeasureActiveQueries(interval time.Duration) {
	for range time.Tick(interval) {
		var count int64
		err := Conn.QueryRow(`-- setup.MeasureActiveQueries
SELECT count(*) FROM pg_stat_activity WHERE state='active'`).Scan(&count)
		if err == nil {
			go metrics.Measure("active_queries.count", count)
		} else {
			go metrics.Increment("active_queries.error")
		}
	}
}
