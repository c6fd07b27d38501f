package service

import (
	"encoding/json"

	"PPInbox/logger"
	"PPInbox/module/inbox/model"

	"github.com/google/uuid"
)

// SubjectFanout 跨实例扇出的 NATS subject（广播，不带 queue 组）
const SubjectFanout = "inbox.fanout"

// Bus 消息总线依赖（natsx.Client 满足；测试用 fake）
type Bus interface {
	Publish(subject string, data []byte) error
	Subscribe(subject, queue string, h func(subject string, data []byte)) error
}

// LocalHub 本进程的房间投递（ws.Hub 满足）
type LocalHub interface {
	GwID() string
	BroadcastRoom(room string, payload []byte)
}

// Envelope 总线上的信封：rooms + 事件体 + 来源节点（消费侧跳过自己发的）
type Envelope struct {
	EventID string          `json:"event_id"`
	Origin  string          `json:"origin"`
	Rooms   []string        `json:"rooms"`
	Event   model.RoomEvent `json:"event"`
}

// Publisher 扇出发布器：本地直接进 Hub，同时广播给其它实例。
// 显式注入依赖、显式生命周期（Start 订阅 / 总线随进程 Drain），不做包级单例。
type Publisher struct {
	hub LocalHub
	bus Bus
}

func NewPublisher(hub LocalHub, bus Bus) *Publisher {
	return &Publisher{hub: hub, bus: bus}
}

// Start 订阅总线，把远端实例的事件补投到本地房间
func (p *Publisher) Start() error {
	if p.bus == nil {
		logger.Warn("[fanout] bus not configured, cross-instance delivery disabled")
		return nil
	}
	return p.bus.Subscribe(SubjectFanout, "", func(_ string, data []byte) {
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.Errorf("[fanout] bad envelope: %v", err)
			return
		}
		if env.Origin == p.hub.GwID() {
			return // 自己发的，本地已投
		}
		payload, err := json.Marshal(env.Event)
		if err != nil {
			return
		}
		for _, room := range env.Rooms {
			p.hub.BroadcastRoom(room, payload)
		}
	})
}

// PublishNewMessage 新消息：user / page / conv 三个房间
func (p *Publisher) PublishNewMessage(conv *model.Conversation, msg *model.Message) {
	ev := model.RoomEvent{
		Event: model.EventNewMessage,
		Data: model.RoomEventData{
			ConversationID: conv.ConversationID,
			Message:        msg,
		},
	}
	p.emit(ev, roomsFor(conv))
}

// PublishConversationUpdate 会话快照变更（分配、已读等）
func (p *Publisher) PublishConversationUpdate(conv *model.Conversation) {
	ev := model.RoomEvent{
		Event: model.EventConversationUpdate,
		Data: model.RoomEventData{
			ConversationID: conv.ConversationID,
			Conversation:   conv,
		},
	}
	p.emit(ev, roomsFor(conv))
}

func roomsFor(conv *model.Conversation) []string {
	rooms := make([]string, 0, 3)
	if conv.AssignedToID != "" {
		rooms = append(rooms, model.RoomUser(conv.AssignedToID))
	}
	rooms = append(rooms, model.RoomPage(conv.PageID), model.RoomConv(conv.ConversationID))
	return rooms
}

func (p *Publisher) emit(ev model.RoomEvent, rooms []string) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Errorf("[fanout] marshal event conv=%s err=%v", ev.Data.ConversationID, err)
		return
	}

	// 本地先投，保证单实例部署没有总线也能用
	for _, room := range rooms {
		p.hub.BroadcastRoom(room, payload)
	}

	if p.bus == nil {
		return
	}
	env := Envelope{
		EventID: uuid.NewString(),
		Origin:  p.hub.GwID(),
		Rooms:   rooms,
		Event:   ev,
	}
	data, err := json.Marshal(env)
	if err != nil {
		logger.Errorf("[fanout] marshal envelope conv=%s err=%v", ev.Data.ConversationID, err)
		return
	}
	if err := p.bus.Publish(SubjectFanout, data); err != nil {
		// best-effort：发布失败只记录（带房间与实体，便于回放）
		logger.Errorf("[fanout] publish conv=%s rooms=%v err=%v", ev.Data.ConversationID, rooms, err)
	}
}
