package rediscontainer

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/adeilh/postrank/internal/testutil/docker"
)

const hostPort = "6390"

var container = &docker.Container{
	Name:     "postrank-redis-test",
	Image:    "redis:7-alpine",
	HostPort: hostPort,
	Port:     "6379",
	Ready:    ping,
}

// Addr exposes the Redis host:port combination used by integration tests.
func Addr() string { return "127.0.0.1:" + hostPort }

// Setup runs the container and waits until it answers PING with PONG.
func Setup() error { return container.Start(10 * time.Second) }

// Teardown stops the Redis container if it is running.
func Teardown() error { return container.Stop() }

func ping() error {
	conn, err := net.DialTimeout("tcp", Addr(), 500*time.Millisecond)
	if err != nil {
		return err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(500 * time.Millisecond))
	if _, err := conn.Write([]byte("*1\r\n$4\r\nPING\r\n")); err != nil {
		return err
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return err
	}
	if !strings.HasPrefix(line, "+PONG") {
		return fmt.Errorf("unexpected PING reply %q", line)
	}
	return nil
}
