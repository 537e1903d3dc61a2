package telegram

import (
	"strconv"
	"strings"
	"time"

	"ex-otogi-trade/pkg/otogi"

	"github.com/gotd/td/tg"
)

const unknownPeerID = "unknown"

// gotdUpdateEnvelope is one update cut out of a gotd container, carrying the
// users and chats the container shipped alongside it.
type gotdUpdateEnvelope struct {
	update      tg.UpdateClass
	occurredAt  time.Time
	usersByID   map[int64]*tg.User
	chatsByID   map[int64]gotdChatInfo
	updateClass string
}

type gotdChatInfo struct {
	title     string
	kind      otogi.ConversationType
	inputPeer tg.InputPeerClass
}

func indexGotdUsers(users []tg.UserClass) map[int64]*tg.User {
	index := make(map[int64]*tg.User, len(users))
	for _, user := range users {
		if user == nil {
			continue
		}
		if full, ok := user.AsNotEmpty(); ok && full != nil {
			index[full.ID] = full
		}
	}
	if len(index) == 0 {
		return nil
	}

	return index
}

func indexGotdChats(chats []tg.ChatClass) map[int64]gotdChatInfo {
	index := make(map[int64]gotdChatInfo, len(chats))
	for _, chat := range chats {
		if id, info, ok := describeGotdChat(chat); ok {
			index[id] = info
		}
	}
	if len(index) == 0 {
		return nil
	}

	return index
}

// describeGotdChat classifies one chat entity. Megagroups are reported as
// groups although outbound calls reach them through channel peers.
func describeGotdChat(chat tg.ChatClass) (int64, gotdChatInfo, bool) {
	switch typed := chat.(type) {
	case *tg.Chat:
		return typed.ID, gotdChatInfo{typed.Title, otogi.ConversationTypeGroup, typed.AsInputPeer()}, true
	case *tg.ChatForbidden:
		return typed.ID, gotdChatInfo{typed.Title, otogi.ConversationTypeGroup, &tg.InputPeerChat{ChatID: typed.ID}}, true
	case *tg.Channel:
		return typed.ID, gotdChatInfo{typed.Title, channelConversationType(typed.Megagroup), typed.AsInputPeer()}, true
	case *tg.ChannelForbidden:
		peer := &tg.InputPeerChannel{ChannelID: typed.ID, AccessHash: typed.AccessHash}
		return typed.ID, gotdChatInfo{typed.Title, channelConversationType(typed.Megagroup), peer}, true
	default:
		return 0, gotdChatInfo{}, false
	}
}

func channelConversationType(megagroup bool) otogi.ConversationType {
	if megagroup {
		return otogi.ConversationTypeGroup
	}

	return otogi.ConversationTypeChannel
}

// chatRef resolves the conversation a message was posted in.
func (e gotdUpdateEnvelope) chatRef(peer tg.PeerClass) ChatRef {
	var (
		id       int64
		fallback otogi.ConversationType
	)
	switch typed := peer.(type) {
	case *tg.PeerUser:
		user := e.userRef(typed.UserID)
		return ChatRef{ID: user.ID, Type: otogi.ConversationTypePrivate, Title: user.DisplayName}
	case *tg.PeerChat:
		id, fallback = typed.ChatID, otogi.ConversationTypeGroup
	case *tg.PeerChannel:
		id, fallback = typed.ChannelID, otogi.ConversationTypeChannel
	default:
		return ChatRef{ID: unknownPeerID, Type: otogi.ConversationTypePrivate}
	}

	ref := ChatRef{ID: strconv.FormatInt(id, 10), Type: fallback}
	if info, known := e.chatsByID[id]; known {
		ref.Title, ref.Type = info.title, info.kind
	}

	return ref
}

// actorRef resolves who authored a message. Chats and channels posting as
// themselves become actors named after the chat.
func (e gotdUpdateEnvelope) actorRef(peer tg.PeerClass) ActorRef {
	switch typed := peer.(type) {
	case *tg.PeerUser:
		return e.userRef(typed.UserID)
	case *tg.PeerChat:
		return ActorRef{ID: strconv.FormatInt(typed.ChatID, 10), DisplayName: e.chatsByID[typed.ChatID].title}
	case *tg.PeerChannel:
		return ActorRef{ID: strconv.FormatInt(typed.ChannelID, 10), DisplayName: e.chatsByID[typed.ChannelID].title}
	default:
		return ActorRef{ID: unknownPeerID}
	}
}

func (e gotdUpdateEnvelope) userRef(userID int64) ActorRef {
	if userID == 0 {
		return ActorRef{ID: unknownPeerID}
	}
	ref := ActorRef{ID: strconv.FormatInt(userID, 10)}
	user := e.usersByID[userID]
	if user == nil {
		return ref
	}

	ref.Username, _ = user.GetUsername()
	ref.IsBot = user.Bot
	firstName, _ := user.GetFirstName()
	lastName, _ := user.GetLastName()
	for _, name := range []string{strings.TrimSpace(firstName + " " + lastName), ref.Username, ref.ID} {
		if name != "" {
			ref.DisplayName = name
			break
		}
	}

	return ref
}

// inputPeer returns the peer outbound calls need to address peer, or nil when
// the envelope lacks the access hash.
func (e gotdUpdateEnvelope) inputPeer(peer tg.PeerClass) tg.InputPeerClass {
	switch typed := peer.(type) {
	case *tg.PeerUser:
		if user := e.usersByID[typed.UserID]; user != nil {
			return user.AsInputPeer()
		}
	case *tg.PeerChat:
		if typed.ChatID != 0 {
			return &tg.InputPeerChat{ChatID: typed.ChatID}
		}
	case *tg.PeerChannel:
		if info, known := e.chatsByID[typed.ChannelID]; known && info.inputPeer != nil {
			return cloneInputPeer(info.inputPeer)
		}
	}

	return nil
}

func (e gotdUpdateEnvelope) metadata() map[string]string {
	if e.updateClass == "" {
		return nil
	}

	return map[string]string{"gotd_update": e.updateClass}
}
