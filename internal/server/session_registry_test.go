package server

import (
	"strings"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func TestSessionRegistry_Join(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		rawName  string
		wantName string
		wantErr  error
	}{
		{name: "plain", rawName: "alice", wantName: "alice"},
		{name: "trimmed", rawName: "  bob  ", wantName: "bob"},
		{name: "max length", rawName: strings.Repeat("x", 20), wantName: strings.Repeat("x", 20)},
		{name: "padded max length", rawName: " " + strings.Repeat("x", 20) + " ", wantName: strings.Repeat("x", 20)},
		{name: "sanitized", rawName: "<b>eve</b>", wantName: "&lt;b&gt;eve&lt;/b&gt;"},
		{name: "empty", rawName: "", wantErr: ErrInvalidUsername},
		{name: "blank", rawName: "    ", wantErr: ErrInvalidUsername},
		{name: "too long", rawName: strings.Repeat("x", 21), wantErr: ErrInvalidUsername},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			reg := NewSessionRegistry(newTestPolicy(t), 20)

			session, err := reg.Join("conn-1", tt.rawName, now)
			if tt.wantErr != nil {
				req.ErrorIs(err, tt.wantErr)
				req.Equal(0, reg.Count())
				return
			}
			req.NoError(err)
			req.Equal(tt.wantName, session.DisplayName)
			req.Equal("conn-1", session.ConnectionID)
			req.Equal(now, session.JoinedAt)
			req.Equal(1, reg.Count())
		})
	}
}

func TestSessionRegistry_SecondJoinIsRejected(t *testing.T) {
	req := require.New(t)
	reg := NewSessionRegistry(newTestPolicy(t), 20)

	_, err := reg.Join("conn-1", "alice", time.Now())
	req.NoError(err)

	_, err = reg.Join("conn-1", "mallory", time.Now())
	req.ErrorIs(err, ErrAlreadyJoined)

	session, ok := reg.Get("conn-1")
	req.True(ok)
	req.Equal("alice", session.DisplayName)
	req.Equal(1, reg.Count())
}

func TestSessionRegistry_Leave(t *testing.T) {
	req := require.New(t)
	reg := NewSessionRegistry(newTestPolicy(t), 20)

	_, ok := reg.Leave("never-joined")
	req.False(ok)

	_, err := reg.Join("conn-1", "alice", time.Now())
	req.NoError(err)

	session, ok := reg.Leave("conn-1")
	req.True(ok)
	req.Equal("alice", session.DisplayName)
	req.False(reg.Has("conn-1"))

	_, ok = reg.Leave("conn-1")
	req.False(ok)
	req.Equal(0, reg.Count())
}

func TestSessionRegistry_Snapshot(t *testing.T) {
	req := require.New(t)
	reg := NewSessionRegistry(newTestPolicy(t), 20)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	_, err := reg.Join("c", "carol", base.Add(2*time.Second))
	req.NoError(err)
	_, err = reg.Join("a", "alice", base)
	req.NoError(err)
	_, err = reg.Join("b", "bob", base.Add(time.Second))
	req.NoError(err)

	names := lo.Map(reg.Snapshot(), func(s Session, _ int) string { return s.DisplayName })
	req.Equal([]string{"alice", "bob", "carol"}, names)
}
