package ws

import (
	"encoding/json"
	"time"

	"github.com/cwrk-planet/karaoke-service/internal/domain"
)

// Типы сообщений сервер -> клиент. События комнаты (queue.updated,
// participant.updated, room.updated) пересылаются с типом события как есть.
const (
	TypeSnapshot   = "snapshot"    // состояние комнаты при подключении и по sync
	TypePeerJoined = "peer_joined" // клиент подключился к WS комнаты
	TypePeerLeft   = "peer_left"   // клиент отключился
	TypeError      = "error"       // ответ на неудачную команду клиента
)

// Типы сообщений клиент -> сервер.
const (
	TypeSync           = "sync"            // прислать snapshot заново
	TypePlaybackEnded  = "playback.ended"  // плеер ведущего доиграл entry_id
	TypePlaybackError  = "playback.error"  // плеер не смог воспроизвести entry_id
	TypePlaybackEnsure = "playback.ensure" // запустить очередь, если ничего не играет
)

type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// inbound keeps the payload raw until the type is known.
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type SnapshotPayload struct {
	Room       domain.Room        `json:"room"`
	NowPlaying *domain.QueueItem  `json:"now_playing"`
	Pending    []domain.QueueItem `json:"pending"`
	Status     string             `json:"status"`
	Role       string             `json:"role,omitempty"`
}

type EventPayload struct {
	RoomID string          `json:"room_id"`
	At     time.Time       `json:"at"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type PeerEventPayload struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

type PlaybackPayload struct {
	EntryID string `json:"entry_id"`
}

type ErrorPayload struct {
	Command string `json:"command"`
	Message string `json:"message"`
}
