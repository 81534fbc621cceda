package websocket

import (
	"testing"

	apperrors "github.com/askwhyharsh/caddate/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInbound(t *testing.T) {
	radius, limit := 5000.0, 100

	tests := []struct {
		name string
		raw  string
		want Inbound
	}{
		{
			name: "location update",
			raw:  `{"type":"location_update","data":{"location":{"latitude":40.9884,"longitude":29.0255,"accuracy":5}}}`,
			want: &LocationUpdate{},
		},
		{
			name: "nearby with params",
			raw:  `{"type":"request_nearby_users","data":{"radius":5000,"limit":100}}`,
			want: &RequestNearby{Radius: &radius, Limit: &limit},
		},
		{
			name: "nearby without data",
			raw:  `{"type":"request_nearby_users"}`,
			want: &RequestNearby{},
		},
		{
			name: "join trims room",
			raw:  `{"type":"join_room","data":{"room":"  moda "}}`,
			want: &JoinRoom{Room: "moda"},
		},
		{
			name: "leave",
			raw:  `{"type":"leave_room","data":{"room":"moda"}}`,
			want: &LeaveRoom{Room: "moda"},
		},
		{
			name: "status",
			raw:  `{"type":"update_user_status","data":{"status":"busy"}}`,
			want: &UpdateStatus{Status: "busy"},
		},
		{
			name: "ping",
			raw:  `{"type":"ping","data":null}`,
			want: &Ping{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeInbound([]byte(tt.raw))
			require.NoError(t, err)
			if lu, ok := got.(*LocationUpdate); ok {
				assert.Equal(t, 40.9884, lu.Location.Latitude)
				assert.Equal(t, 29.0255, lu.Location.Longitude)
				require.NotNil(t, lu.Location.Accuracy)
				assert.Equal(t, 5.0, *lu.Location.Accuracy)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeInbound_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `hello`},
		{"unknown type", `{"type":"send_message","data":{}}`},
		{"missing type", `{"data":{}}`},
		{"bad payload", `{"type":"location_update","data":{"location":"here"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeInbound([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
		})
	}

	_, err := DecodeInbound([]byte(`{"type":"send_message"}`))
	assert.ErrorIs(t, err, apperrors.ErrInvalidMessageType)
}

func TestNewErrorMessage(t *testing.T) {
	msg := NewErrorMessage(apperrors.RateLimited(apperrors.ErrRateLimitExceeded))
	assert.Equal(t, MessageTypeError, msg.Type)
	assert.Equal(t, ErrorPayload{Message: "rate limit exceeded", Code: "RATE_LIMIT"}, msg.Data)
}
