package schedules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCron(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{name: "every minute rejected", expr: "* * * * *", wantErr: true},
		{name: "every two minutes rejected", expr: "*/2 * * * *", wantErr: true},
		{name: "every four minutes rejected", expr: "*/4 * * * *", wantErr: true},
		{name: "every five minutes accepted", expr: "*/5 * * * *", wantErr: false},
		{name: "every ten minutes accepted", expr: "*/10 * * * *", wantErr: false},
		{name: "hourly accepted", expr: "0 * * * *", wantErr: false},
		{name: "daily at nine accepted", expr: "0 9 * * *", wantErr: false},
		{name: "weekly accepted", expr: "30 2 * * 1", wantErr: false},
		{name: "minute list under limit rejected", expr: "1,2,3 * * * *", wantErr: true},
		{name: "spread minute list accepted", expr: "0,15,30,45 * * * *", wantErr: false},
		{name: "empty rejected", expr: "", wantErr: true},
		{name: "malformed rejected", expr: "not a cron", wantErr: true},
		{name: "six fields rejected", expr: "0 0 * * * *", wantErr: true},
		{name: "descriptor rejected", expr: "@every 30s", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched, err := ParseCron(tt.expr)
			if tt.wantErr {
				require.Error(t, err)
				var validationErr *ValidationError
				assert.ErrorAs(t, err, &validationErr)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, sched)
			}
		})
	}
}

func TestParseTimezone(t *testing.T) {
	tests := []struct {
		name    string
		zone    string
		wantErr bool
	}{
		{name: "UTC", zone: "UTC", wantErr: false},
		{name: "IANA zone", zone: "America/New_York", wantErr: false},
		{name: "another IANA zone", zone: "Asia/Ho_Chi_Minh", wantErr: false},
		{name: "empty rejected", zone: "", wantErr: true},
		{name: "garbage rejected", zone: "Mars/Olympus_Mons", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := ParseTimezone(tt.zone)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, loc)
			}
		})
	}
}

func TestValidateWebhookURL(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		environment string
		wantErr     bool
	}{
		{name: "https in production", url: "https://hooks.example.com/x", environment: "production", wantErr: false},
		{name: "http in production rejected", url: "http://hooks.example.com/x", environment: "production", wantErr: true},
		{name: "http in development", url: "http://localhost:9999/hook", environment: "development", wantErr: false},
		{name: "https in development", url: "https://hooks.example.com/x", environment: "development", wantErr: false},
		{name: "missing scheme rejected", url: "hooks.example.com/x", environment: "development", wantErr: true},
		{name: "relative rejected", url: "/hooks/x", environment: "development", wantErr: true},
		{name: "ftp rejected", url: "ftp://hooks.example.com/x", environment: "development", wantErr: true},
		{name: "empty rejected", url: "", environment: "development", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWebhookURL(tt.url, tt.environment)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNextRunAcrossDSTTransition(t *testing.T) {
	// US Eastern switched to DST at 02:00 on 2024-03-10. A daily 09:00
	// schedule must fire at 14:00 UTC before the switch and 13:00 UTC
	// after it.
	beforeSwitch := time.Date(2024, time.March, 9, 15, 0, 0, 0, time.UTC) // 10:00 EST

	got, err := NextRun("0 9 * * *", "America/New_York", beforeSwitch)
	require.NoError(t, err)

	want := time.Date(2024, time.March, 10, 13, 0, 0, 0, time.UTC) // 09:00 EDT
	assert.True(t, got.Equal(want), "got %s, want %s", got, want)

	// And the firing after that is 24 wall-clock hours minus nothing:
	// 09:00 EDT again, 23 absolute hours after the pre-switch firing
	// would have been.
	got2, err := NextRun("0 9 * * *", "America/New_York", got.Add(time.Minute))
	require.NoError(t, err)
	want2 := time.Date(2024, time.March, 11, 13, 0, 0, 0, time.UTC)
	assert.True(t, got2.Equal(want2), "got %s, want %s", got2, want2)
}

func TestNextRunIsStrictlyAfter(t *testing.T) {
	after := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	got, err := NextRun("*/5 * * * *", "UTC", after)
	require.NoError(t, err)
	assert.True(t, got.After(after))
}
