package natsx

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Config 客户端配置
type Config struct {
	Servers       []string
	Name          string
	Username      string
	Password      string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// Handler 消费回调（类型别名，方便上层用函数字面量定义总线接口）
type Handler = func(subject string, data []byte)

// Client 统一客户端：发布 + 订阅，显式生命周期（启动连接、退出 Drain）
type Client struct {
	cfg Config
	nc  *nats.Conn

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewClient 连接 NATS
func NewClient(cfg Config) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, nc: nc}, nil
}

// Publish Core 发布（广播给所有实例）
func (c *Client) Publish(subject string, data []byte) error {
	if c == nil || c.nc == nil {
		return errors.New("natsx not initialized")
	}
	return c.nc.Publish(subject, data)
}

// Subscribe 订阅；queue 为空表示广播（每实例一份），否则组内分摊
func (c *Client) Subscribe(subject, queue string, h Handler) error {
	if c == nil || c.nc == nil {
		return errors.New("natsx not initialized")
	}
	cb := func(m *nats.Msg) {
		h(m.Subject, append([]byte(nil), m.Data...))
	}
	var (
		sub *nats.Subscription
		err error
	)
	if queue == "" {
		sub, err = c.nc.Subscribe(subject, cb)
	} else {
		sub, err = c.nc.QueueSubscribe(subject, queue, cb)
	}
	if err != nil {
		return err
	}
	_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return nil
}

// Close 优雅关闭：先退订再 Drain 连接
func (c *Client) Close() error {
	if c == nil || c.nc == nil {
		return nil
	}
	c.mu.Lock()
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.subs = nil
	c.mu.Unlock()

	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
		return err
	}
	return nil
}
