package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAsHubError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want *HubError
	}{
		{name: "sentinel", err: ErrRateLimited, want: ErrRateLimited},
		{name: "wrapped sentinel", err: fmt.Errorf("send: %w", ErrInvalidMessage), want: ErrInvalidMessage},
		{name: "plain error", err: errors.New("disk on fire"), want: errSendFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Same(t, tt.want, asHubError(tt.err, errSendFailed))
		})
	}
}

func TestHubErrorEncodesAsErrorEvent(t *testing.T) {
	req := require.New(t)

	raw, err := json.Marshal(Event{Type: EventError, Payload: ErrMustJoinFirst.Payload()})
	req.NoError(err)
	req.JSONEq(`{"event":"error","data":{"kind":"MustJoinFirst","message":"Please join the chat first"}}`, string(raw))
	req.Equal("MustJoinFirst: Please join the chat first", ErrMustJoinFirst.Error())
}
