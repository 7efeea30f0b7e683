package mongocontainer

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/adeilh/postrank/internal/testutil/docker"
)

const hostPort = "57017"

var container = &docker.Container{
	Name:     "postrank-mongo-test",
	Image:    "mongo:7",
	HostPort: hostPort,
	Port:     "27017",
	Ready:    ping,
}

// URI returns the connection string for the test MongoDB instance.
func URI() string { return "mongodb://127.0.0.1:" + hostPort }

// Setup launches the MongoDB container if it isn't already running.
func Setup() error { return container.Start(30 * time.Second) }

// Teardown stops the container launched by Setup.
func Teardown() error { return container.Stop() }

func ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(URI()))
	if err != nil {
		return err
	}
	defer client.Disconnect(context.Background())
	return client.Ping(ctx, nil)
}
