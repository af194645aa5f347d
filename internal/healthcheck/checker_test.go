package healthcheck

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckerMarksUnhealthyAfterMaxFailures(t *testing.T) {
	var dbErr error
	c := NewChecker(&Config{
		MaxFailures: 2,
		Probes: []Probe{
			{Name: "database", Check: func(context.Context) error { return dbErr }},
			{Name: "redis", Check: func(context.Context) error { return nil }},
		},
	})

	c.CheckAll()
	assert.Equal(t, Healthy, c.OverallHealth())

	dbErr = errors.New("connection refused")
	c.CheckAll()
	assert.Equal(t, Healthy, c.OverallHealth(), "one failure is tolerated")

	c.CheckAll()
	assert.Equal(t, Degraded, c.OverallHealth())
	status := c.GetAllStatus()["database"]
	assert.False(t, status.IsHealthy)
	assert.Equal(t, 2, status.FailureCount)
	assert.Equal(t, "connection refused", status.LastError)

	dbErr = nil
	c.CheckAll()
	assert.Equal(t, Healthy, c.OverallHealth())
	assert.Zero(t, c.GetAllStatus()["database"].FailureCount)
}

func TestCheckerAllDown(t *testing.T) {
	c := NewChecker(&Config{
		MaxFailures: 1,
		Probes:      []Probe{{Name: "database", Check: func(context.Context) error { return errors.New("down") }}},
	})
	c.CheckAll()
	assert.Equal(t, Unhealthy, c.OverallHealth())
	assert.Equal(t, "unhealthy", c.OverallHealth().String())
}
