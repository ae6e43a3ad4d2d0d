// Package typing publishes ephemeral "user is typing" events on topic
// channels. Debouncing happens at the sender; receivers expire stale state on
// their own, so the server side is a thin validated relay.
package typing

import (
	"log/slog"

	"forum-realtime/internal/realtime"
)

type Service struct {
	broker realtime.Broker
	logger *slog.Logger
}

func NewService(broker realtime.Broker) *Service {
	return &Service{broker: broker, logger: slog.Default()}
}

// Start publishes typing:start for the user on the topic's channel.
func (s *Service) Start(topicID, userID int64, username string) {
	channel := realtime.TopicChannel(topicID)
	s.broker.Publish(channel, realtime.EventTypingStart, realtime.TypingPayload{
		UserID:   userID,
		Username: username,
		TopicID:  topicID,
	}, userID)
	s.logger.Debug("[TYPING] Published typing:start", "user", userID, "topic", topicID)
}

// Stop publishes typing:stop for the user on the topic's channel.
func (s *Service) Stop(topicID, userID int64) {
	channel := realtime.TopicChannel(topicID)
	s.broker.Publish(channel, realtime.EventTypingStop, realtime.TypingPayload{
		UserID:  userID,
		TopicID: topicID,
	}, userID)
	s.logger.Debug("[TYPING] Published typing:stop", "user", userID, "topic", topicID)
}
