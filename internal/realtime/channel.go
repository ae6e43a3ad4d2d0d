package realtime

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// GlobalChannel receives a copy of every event published on any channel.
const GlobalChannel = "/global"

// ChannelKind is the entity kind a channel is derived from.
type ChannelKind string

const (
	ChannelTopic        ChannelKind = "topic"
	ChannelCategory     ChannelKind = "category"
	ChannelUser         ChannelKind = "user"
	ChannelConversation ChannelKind = "conversation"
	ChannelGlobal       ChannelKind = "global"
)

var ErrInvalidChannel = errors.New("invalid channel name")

func TopicChannel(id int64) string        { return fmt.Sprintf("/topic/%d", id) }
func CategoryChannel(id int64) string     { return fmt.Sprintf("/category/%d", id) }
func UserChannel(id int64) string         { return fmt.Sprintf("/user/%d", id) }
func ConversationChannel(id int64) string { return fmt.Sprintf("/conversation/%d", id) }

// ParseChannel validates a channel name against the grammar and returns its
// kind and entity id. The id is zero for the global channel.
func ParseChannel(name string) (ChannelKind, int64, error) {
	if name == GlobalChannel {
		return ChannelGlobal, 0, nil
	}

	parts := strings.Split(name, "/")
	if len(parts) != 3 || parts[0] != "" {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidChannel, name)
	}

	kind := ChannelKind(parts[1])
	switch kind {
	case ChannelTopic, ChannelCategory, ChannelUser, ChannelConversation:
	default:
		return "", 0, fmt.Errorf("%w: unknown kind in %q", ErrInvalidChannel, name)
	}

	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("%w: bad id in %q", ErrInvalidChannel, name)
	}

	return kind, id, nil
}

// ParseChannelList splits and validates a comma-separated channel list as it
// appears in stream subscribe requests.
func ParseChannelList(raw string) ([]string, error) {
	var channels []string
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, _, err := ParseChannel(name); err != nil {
			return nil, err
		}
		channels = append(channels, name)
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: empty channel list", ErrInvalidChannel)
	}
	return channels, nil
}
