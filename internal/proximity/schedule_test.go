package proximity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSchedule_PlanShape(t *testing.T) {
	t.Parallel()

	plan, err := BuildSchedule(ScheduleConfig{
		Primary:         "https://primary.example/api",
		Mirrors:         []string{"https://mirror-a.example/api", "https://mirror-b.example/api"},
		InitialTimeout:  8 * time.Second,
		RetryTimeout:    20 * time.Second,
		InitialDelay:    500 * time.Millisecond,
		DelayMultiplier: 2,
	})
	require.NoError(t, err)
	require.Len(t, plan, 4)

	// Attempt 1: primary, short timeout, no delay.
	assert.Equal(t, "https://primary.example/api", plan[0].Endpoint)
	assert.Equal(t, 8*time.Second, plan[0].Timeout)
	assert.Zero(t, plan[0].Delay)

	// Attempt 2: primary retried with the longer timeout.
	assert.Equal(t, "https://primary.example/api", plan[1].Endpoint)
	assert.Equal(t, 20*time.Second, plan[1].Timeout)
	assert.Equal(t, 500*time.Millisecond, plan[1].Delay)

	// Attempts 3 and 4: mirrors in order, same long timeout.
	assert.Equal(t, "https://mirror-a.example/api", plan[2].Endpoint)
	assert.Equal(t, 20*time.Second, plan[2].Timeout)
	assert.Equal(t, 1*time.Second, plan[2].Delay)

	assert.Equal(t, "https://mirror-b.example/api", plan[3].Endpoint)
	assert.Equal(t, 20*time.Second, plan[3].Timeout)
	assert.Equal(t, 2*time.Second, plan[3].Delay)
}

func TestBuildSchedule_DelaysStrictlyIncrease(t *testing.T) {
	t.Parallel()

	plan, err := BuildSchedule(ScheduleConfig{
		Primary:         "https://primary.example/api",
		Mirrors:         []string{"a.example", "b.example", "c.example", "d.example"},
		InitialDelay:    100 * time.Millisecond,
		DelayMultiplier: 1.5,
	})
	require.NoError(t, err)
	require.Len(t, plan, 6)

	for i := 2; i < len(plan); i++ {
		assert.Greater(t, plan[i].Delay, plan[i-1].Delay,
			"delay must grow between attempts %d and %d", i, i+1)
	}
}

func TestBuildSchedule_Defaults(t *testing.T) {
	t.Parallel()

	plan, err := BuildSchedule(ScheduleConfig{
		Primary: "https://primary.example/api",
		Mirrors: []string{"https://mirror.example/api"},
	})
	require.NoError(t, err)
	require.Len(t, plan, 3)

	assert.Equal(t, 8*time.Second, plan[0].Timeout)
	assert.Equal(t, 20*time.Second, plan[1].Timeout)
	assert.Equal(t, 500*time.Millisecond, plan[1].Delay)
	assert.Equal(t, 1*time.Second, plan[2].Delay)
}

func TestBuildSchedule_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  ScheduleConfig
	}{
		{"missing primary", ScheduleConfig{Mirrors: []string{"m.example"}}},
		{"no mirrors", ScheduleConfig{Primary: "p.example"}},
		{"empty mirror", ScheduleConfig{Primary: "p.example", Mirrors: []string{""}}},
		{"mirror duplicates primary", ScheduleConfig{Primary: "p.example", Mirrors: []string{"p.example"}}},
		{
			"retry timeout below initial",
			ScheduleConfig{
				Primary:        "p.example",
				Mirrors:        []string{"m.example"},
				InitialTimeout: 20 * time.Second,
				RetryTimeout:   5 * time.Second,
			},
		},
		{
			"multiplier not above one",
			ScheduleConfig{
				Primary:         "p.example",
				Mirrors:         []string{"m.example"},
				DelayMultiplier: 1.0,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := BuildSchedule(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestBuildSchedule_PlanLengthTracksMirrors(t *testing.T) {
	t.Parallel()

	for mirrors := 1; mirrors <= 5; mirrors++ {
		cfg := ScheduleConfig{Primary: "p.example"}
		for i := 0; i < mirrors; i++ {
			cfg.Mirrors = append(cfg.Mirrors, string(rune('a'+i))+".example")
		}
		plan, err := BuildSchedule(cfg)
		require.NoError(t, err)
		assert.Len(t, plan, 2+mirrors)
	}
}
