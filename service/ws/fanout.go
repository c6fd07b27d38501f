package ws

import (
	"hash/fnv"
)

type fanoutJob struct {
	conns   []*Client
	payload []byte
}

// Fanout 广播工作池。按房间号分片到固定 worker：同一房间永远走同一条队列，
// 房间内的事件顺序 = 入队顺序。
type Fanout struct {
	shards []chan fanoutJob
}

func NewFanout(workers, queue int) *Fanout {
	if workers <= 0 {
		workers = 4
	}
	if queue <= 0 {
		queue = 1024
	}
	f := &Fanout{shards: make([]chan fanoutJob, workers)}
	for i := 0; i < workers; i++ {
		ch := make(chan fanoutJob, queue)
		f.shards[i] = ch
		go func() {
			for job := range ch {
				for _, c := range job.conns {
					select {
					case c.Send <- job.payload:
					default:
						// Slow client: can be counted/disconnected; here we choose to skip
					}
				}
			}
		}()
	}
	return f
}

// Broadcast room 只用于分片，conns 由调用方先解析好
func (f *Fanout) Broadcast(room string, conns []*Client, payload []byte) {
	if len(conns) == 0 || len(payload) == 0 {
		return
	}
	f.shards[f.shard(room)] <- fanoutJob{conns: conns, payload: payload}
}

func (f *Fanout) shard(room string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(room))
	return int(h.Sum32() % uint32(len(f.shards)))
}

// Close 关闭所有分片队列（只在 Hub 关闭后调用）
func (f *Fanout) Close() {
	for _, ch := range f.shards {
		close(ch)
	}
}
