package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelDerivation(t *testing.T) {
	assert.Equal(t, "/topic/42", TopicChannel(42))
	assert.Equal(t, "/category/3", CategoryChannel(3))
	assert.Equal(t, "/user/9", UserChannel(9))
	assert.Equal(t, "/conversation/5", ConversationChannel(5))
}

func TestParseChannel(t *testing.T) {
	tests := []struct {
		name     string
		wantKind ChannelKind
		wantID   int64
		wantErr  bool
	}{
		{name: "/topic/42", wantKind: ChannelTopic, wantID: 42},
		{name: "/category/1", wantKind: ChannelCategory, wantID: 1},
		{name: "/user/7", wantKind: ChannelUser, wantID: 7},
		{name: "/conversation/5", wantKind: ChannelConversation, wantID: 5},
		{name: "/global", wantKind: ChannelGlobal},
		{name: "", wantErr: true},
		{name: "topic/42", wantErr: true},
		{name: "/topic/", wantErr: true},
		{name: "/topic/abc", wantErr: true},
		{name: "/topic/-1", wantErr: true},
		{name: "/topic/0", wantErr: true},
		{name: "/thread/42", wantErr: true},
		{name: "/topic/42/extra", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, id, err := ParseChannel(tt.name)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidChannel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, kind)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestParseChannelList(t *testing.T) {
	channels, err := ParseChannelList("/topic/42, /global,/user/7")
	require.NoError(t, err)
	assert.Equal(t, []string{"/topic/42", "/global", "/user/7"}, channels)

	_, err = ParseChannelList("")
	require.ErrorIs(t, err, ErrInvalidChannel)

	_, err = ParseChannelList("/topic/42,/bogus/1")
	require.ErrorIs(t, err, ErrInvalidChannel)
}
