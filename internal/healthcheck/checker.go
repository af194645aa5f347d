package healthcheck

import (
	"context"
	"sync"
	"time"

	"github.com/aman-churiwal/storyforge/internal/logger"
)

// Probe checks one dependency (database, redis, completion gateway breaker).
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Periodically probes dependencies and caches the result for /health
type Checker struct {
	mu           sync.RWMutex
	probes       []Probe
	healthStatus map[string]*Status
	interval     time.Duration
	timeout      time.Duration
	maxFailures  int
	stopChan     chan struct{}
	running      bool
}

// Holds health checker configuration
type Config struct {
	Probes      []Probe
	Interval    time.Duration // How often to check (default: 10s)
	Timeout     time.Duration // Per-probe timeout (default: 2s)
	MaxFailures int           // Failures before marking unhealthy (default: 3)
}

func NewChecker(cfg *Config) *Checker {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}

	checker := &Checker{
		probes:       cfg.Probes,
		healthStatus: make(map[string]*Status),
		interval:     cfg.Interval,
		timeout:      cfg.Timeout,
		maxFailures:  cfg.MaxFailures,
		stopChan:     make(chan struct{}),
	}

	// Initialize status for all probes
	for _, probe := range cfg.Probes {
		checker.healthStatus[probe.Name] = &Status{
			Name:      probe.Name,
			IsHealthy: true, // Assume healthy initially
			LastCheck: time.Now(),
		}
	}

	return checker
}

// Begins periodic health checks
func (c *Checker) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	logger.Info("starting dependency health checks", "probes", len(c.probes), "interval", c.interval)

	// Run initial check immediately
	c.CheckAll()

	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.CheckAll()
			case <-c.stopChan:
				return
			}
		}
	}()
}

// Stops the health checker
func (c *Checker) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		close(c.stopChan)
		c.running = false
		logger.Info("health checker stopped")
	}
}

// Runs every probe once, concurrently
func (c *Checker) CheckAll() {
	var wg sync.WaitGroup

	for _, probe := range c.probes {
		wg.Add(1)
		go func(p Probe) {
			defer wg.Done()
			c.checkProbe(p)
		}(probe)
	}

	wg.Wait()
}

func (c *Checker) checkProbe(p Probe) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := p.Check(ctx); err != nil {
		c.recordFailure(p.Name, err)
		return
	}
	c.recordSuccess(p.Name)
}

// Records a successful health check
func (c *Checker) recordSuccess(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := c.healthStatus[name]
	status.LastCheck = time.Now()
	status.LastSuccess = status.LastCheck
	status.LastError = ""
	status.FailureCount = 0

	if !status.IsHealthy {
		logger.Info("dependency is now healthy", "dependency", name)
		status.IsHealthy = true
	}
}

// Records a failed health check
func (c *Checker) recordFailure(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := c.healthStatus[name]
	status.LastCheck = time.Now()
	status.LastFailure = status.LastCheck
	status.LastError = err.Error()
	status.FailureCount++

	if status.IsHealthy && status.FailureCount >= c.maxFailures {
		logger.Warn("dependency is now unhealthy", "dependency", name, "failures", status.FailureCount, "error", err)
		status.IsHealthy = false
	}
}

// Returns health status of all probes
func (c *Checker) GetAllStatus() map[string]Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	statusMap := make(map[string]Status, len(c.healthStatus))
	for name, status := range c.healthStatus {
		statusMap[name] = *status
	}

	return statusMap
}

// Returns the overall health status
func (c *Checker) OverallHealth() HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.probes) == 0 {
		return Healthy
	}

	healthyCount := 0
	for _, status := range c.healthStatus {
		if status.IsHealthy {
			healthyCount++
		}
	}

	if healthyCount == 0 {
		return Unhealthy
	}
	if healthyCount < len(c.probes) {
		return Degraded
	}

	return Healthy
}
