package ws

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// wsServerConn 起一个只负责 upgrade 的测试服务端，返回服务端侧连接
func wsServerConn(t *testing.T) *websocket.Conn {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	got := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		got <- c
	}))
	t.Cleanup(srv.Close)

	dialURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientSide, _, err := websocket.DefaultDialer.Dial(dialURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = clientSide.Close() })

	select {
	case c := <-got:
		t.Cleanup(func() { _ = c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("upgrade timeout")
		return nil
	}
}

func testClient(t *testing.T, queue int) *Client {
	t.Helper()
	return &Client{
		SnowID: "test",
		Conn:   wsServerConn(t),
		Send:   make(chan []byte, queue),
	}
}

func recvPayload(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case p := <-c.Send:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no payload delivered")
		return nil
	}
}

func TestJoinLeaveRoomSize(t *testing.T) {
	h := NewHub("gw-1", 2, 16)
	defer h.Close()

	c1 := testClient(t, 4)
	c2 := testClient(t, 4)
	h.Register(c1)
	h.Register(c2)

	h.Join(c1, "conv:1")
	h.Join(c2, "conv:1")
	h.Join(c1, "user:a")
	require.Equal(t, 2, h.RoomSize("conv:1"))
	require.Equal(t, 1, h.RoomSize("user:a"))
	require.Equal(t, 0, h.RoomSize("conv:other"))

	// 重复入房不重复计数
	h.Join(c1, "conv:1")
	require.Equal(t, 2, h.RoomSize("conv:1"))

	h.Leave(c1, "conv:1")
	require.Equal(t, 1, h.RoomSize("conv:1"))

	// 最后一人退房，房间回收
	h.Leave(c2, "conv:1")
	require.Equal(t, 0, h.RoomSize("conv:1"))
}

func TestBroadcastRoomOnlyHitsMembers(t *testing.T) {
	h := NewHub("gw-1", 2, 16)
	defer h.Close()

	member := testClient(t, 4)
	outsider := testClient(t, 4)
	h.Register(member)
	h.Register(outsider)
	h.Join(member, "page:1")
	h.Join(outsider, "page:2")

	h.BroadcastRoom("page:1", []byte("hello"))
	require.Equal(t, []byte("hello"), recvPayload(t, member))

	select {
	case p := <-outsider.Send:
		t.Fatalf("outsider got payload %q", p)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBroadcastRoomKeepsOrder(t *testing.T) {
	h := NewHub("gw-1", 4, 64)
	defer h.Close()

	c := testClient(t, 64)
	h.Register(c)
	h.Join(c, "conv:ordered")

	const N = 20
	for i := 0; i < N; i++ {
		h.BroadcastRoom("conv:ordered", []byte(fmt.Sprintf("ev-%02d", i)))
	}
	for i := 0; i < N; i++ {
		require.Equal(t, fmt.Sprintf("ev-%02d", i), string(recvPayload(t, c)))
	}
}

func TestSlowClientDropsNotBlocks(t *testing.T) {
	h := NewHub("gw-1", 1, 64)
	defer h.Close()

	slow := testClient(t, 1) // 队列只有 1
	fast := testClient(t, 16)
	h.Register(slow)
	h.Register(fast)
	h.Join(slow, "page:1")
	h.Join(fast, "page:1")

	for i := 0; i < 5; i++ {
		h.BroadcastRoom("page:1", []byte(fmt.Sprintf("m%d", i)))
	}

	// fast 端全量收到，slow 端被丢也不拖垮广播
	for i := 0; i < 5; i++ {
		require.Equal(t, fmt.Sprintf("m%d", i), string(recvPayload(t, fast)))
	}
	require.Equal(t, "m0", string(recvPayload(t, slow)))
	require.LessOrEqual(t, len(slow.Send), 1)
}

func TestRemoveLeavesAllRooms(t *testing.T) {
	h := NewHub("gw-1", 2, 16)
	defer h.Close()

	c := testClient(t, 4)
	h.Register(c)
	h.Join(c, "conv:1")
	h.Join(c, "page:1")
	require.Equal(t, 1, h.RoomSize("conv:1"))

	h.Remove(c)
	require.Equal(t, 0, h.RoomSize("conv:1"))
	require.Equal(t, 0, h.RoomSize("page:1"))

	// 移除后广播不再投递
	h.BroadcastRoom("conv:1", []byte("late"))
	select {
	case p := <-c.Send:
		t.Fatalf("removed client got payload %q", p)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFanoutShardStable(t *testing.T) {
	f := NewFanout(4, 8)
	defer f.Close()
	for _, room := range []string{"conv:1", "page:9", "user:abc"} {
		first := f.shard(room)
		for i := 0; i < 10; i++ {
			require.Equal(t, first, f.shard(room))
		}
	}
}
