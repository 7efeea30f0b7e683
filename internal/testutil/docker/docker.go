// Package docker runs throwaway containers for integration tests.
package docker

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Container describes a single test dependency published on a fixed host port.
type Container struct {
	Name     string
	Image    string
	HostPort string
	Port     string
	Env      map[string]string
	Ready    func() error

	mu      sync.Mutex
	started bool
	err     error
}

// Start launches the container once and waits until Ready succeeds.
// Later calls return the first outcome.
func (c *Container) Start(timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return c.err
	}
	c.started = true
	c.err = c.start(timeout)
	return c.err
}

// Stop removes the container and allows Start to run again.
func (c *Container) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.started = false
	if c.err != nil {
		return nil
	}
	return stop(c.Name)
}

func (c *Container) start(timeout time.Duration) error {
	if _, err := exec.LookPath("docker"); err != nil {
		return fmt.Errorf("docker executable not found: %w", err)
	}
	_ = stop(c.Name)

	args := []string{"run", "-d", "--rm", "--name", c.Name, "-p", c.HostPort + ":" + c.Port}
	for k, v := range c.Env {
		args = append(args, "-e", k+"="+v)
	}
	args = append(args, c.Image)
	if err := run(args...); err != nil {
		return err
	}
	if c.Ready == nil {
		return nil
	}
	return waitFor(c.Ready, timeout)
}

func waitFor(ready func() error, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var last error
	for time.Now().Before(deadline) {
		if last = ready(); last == nil {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	if last == nil {
		last = errors.New("timeout")
	}
	return fmt.Errorf("container did not become ready in time: %w", last)
}

func stop(name string) error {
	output, err := exec.Command("docker", "stop", name).CombinedOutput()
	if err != nil {
		if strings.Contains(string(output), "No such container") {
			return nil
		}
		return fmt.Errorf("docker stop failed: %w: %s", err, output)
	}
	return nil
}

func run(args ...string) error {
	output, err := exec.Command("docker", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker %s failed: %w: %s", args[0], err, output)
	}
	return nil
}
