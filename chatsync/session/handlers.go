package session

import (
	"github.com/eoncord/chatsync-go/chatsync"
)

func (s *Session) handlers() map[string]chatsync.Handler {
	return map[string]chatsync.Handler{
		chatsync.EventMessageCreated: s.onMessageCreated,
		chatsync.EventMessageUpdated: s.onMessageUpdated,
		chatsync.EventMessageDeleted: s.onMessageDeleted,
		chatsync.EventTypingStart:    s.onTypingStart,
		chatsync.EventTypingStop:     s.onTypingStop,
		chatsync.EventReactionAdd:    s.onReaction,
		chatsync.EventReactionRemove: s.onReaction,
		chatsync.EventPresenceUpdate: s.onPresence,
	}
}

// decode unpacks ev into v and counts it. Undecodable payloads are logged
// and dropped.
func (s *Session) decode(ev chatsync.Event, v any) bool {
	s.metrics.remoteEvents.WithLabelValues(ev.Type).Inc()
	if err := ev.Decode(v); err != nil {
		s.logger.Warn("dropping undecodable event", "type", ev.Type, "error", err)
		return false
	}
	return true
}

func (s *Session) onMessageCreated(ev chatsync.Event) {
	var mc chatsync.MessageCreated
	if !s.decode(ev, &mc) {
		return
	}
	msg := mc.Message
	s.typing.Stop(msg.ConversationID, msg.Author.ID)

	tl, ok := s.visible(msg.ConversationID)
	if !ok {
		// Only the active conversation keeps a sequence; settle the tracker.
		if mc.TemporaryID != "" {
			s.pending.Resolve(mc.TemporaryID, msg)
		}
		return
	}
	if mc.TemporaryID != "" || msg.Author.ID == s.self.ID {
		s.confirm(tl, mc.TemporaryID, msg)
		return
	}
	tl.ApplyRemoteInsert(msg)
}

func (s *Session) onMessageUpdated(ev chatsync.Event) {
	var msg chatsync.Message
	if !s.decode(ev, &msg) {
		return
	}
	editedAt := s.now()
	if msg.EditedAt != nil {
		editedAt = *msg.EditedAt
	}
	if tl, _, err := s.activeTimeline(); err == nil {
		tl.ApplyEdit(msg.ID, msg.Content, editedAt)
	}
}

func (s *Session) onMessageDeleted(ev chatsync.Event) {
	var del chatsync.MessageDelete
	if !s.decode(ev, &del) {
		return
	}
	s.reactions.DropMessage(del.MessageID)
	if tl, _, err := s.activeTimeline(); err == nil {
		tl.ApplyDelete(del.MessageID)
	}
}

func (s *Session) onTypingStart(ev chatsync.Event) {
	var te chatsync.TypingEvent
	if s.decode(ev, &te) {
		s.typing.NoteRemote(te.ConversationID, te.User.ID, te.User.DisplayName)
	}
}

func (s *Session) onTypingStop(ev chatsync.Event) {
	var te chatsync.TypingEvent
	if s.decode(ev, &te) {
		s.typing.Stop(te.ConversationID, te.User.ID)
	}
}

func (s *Session) onReaction(ev chatsync.Event) {
	var re chatsync.ReactionEvent
	if !s.decode(ev, &re) {
		return
	}
	if ev.Type == chatsync.EventReactionAdd {
		s.reactions.Add(re.MessageID, re.Emoji, re.UserID)
	} else {
		s.reactions.Remove(re.MessageID, re.Emoji, re.UserID)
	}
}

func (s *Session) onPresence(ev chatsync.Event) {
	var pe chatsync.PresenceEvent
	if s.decode(ev, &pe) {
		s.presence.Apply(pe)
	}
}
