package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to SessionStatus
		want     bool
	}{
		{StatusInitializing, StatusQRReady, true},
		{StatusInitializing, StatusConnected, true},
		{StatusQRReady, StatusQRReady, true},
		{StatusQRReady, StatusConnected, true},
		{StatusConnected, StatusSyncing, true},
		{StatusSyncing, StatusConnected, true},
		{StatusSyncing, StatusDisconnected, true},
		{StatusDisconnected, StatusInitializing, true},
		{StatusDisconnected, StatusConnected, false},
		{StatusDisconnected, StatusQRReady, false},
		{StatusConnected, StatusQRReady, false},
		{StatusSyncing, StatusSyncing, false},
		{StatusInitializing, StatusSyncing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestSessionStatus_IsLive(t *testing.T) {
	assert.True(t, StatusConnected.IsLive())
	assert.True(t, StatusSyncing.IsLive())
	assert.False(t, StatusQRReady.IsLive())
	assert.False(t, StatusDisconnected.IsLive())
}
