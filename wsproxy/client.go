package wsproxy

import (
	"context"
	"encoding/json"

	"github.com/goware/channel"
	"github.com/goware/logger"
)

// Client is one connected WebSocket session. It starts in the "new" state
// and becomes "started" once it sends {type:"start", namespace:...}; from
// then on it may be assigned as the primary client of that namespace.
type Client struct {
	id        string
	namespace string
	state     clientState

	conn  Conn
	log   logger.Logger
	proxy *Proxy
	out   channel.Channel[any]
}

// ID is the client's connection identifier, unrelated to batch ids.
func (c *Client) ID() string { return c.id }

func (c *Client) send(msg serverMessage) {
	c.out.Send(msg)
}

func (c *Client) writeLoop() {
	for msg := range c.out.ReadChannel() {
		if err := c.conn.WriteJSON(msg); err != nil {
			c.log.Warnf("wsproxy: write failed for client %s: %v", c.id, err)
			return
		}
	}
}

// Serve reads client messages until the connection closes, dispatching
// start/ack messages into the owning Proxy. The caller is responsible for
// closing the underlying Conn when ctx is cancelled, which unblocks the
// ReadJSON call below.
func (c *Client) Serve(ctx context.Context) {
	defer c.proxy.disconnect(c)

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch {
		case msg.Type == "start":
			c.proxy.start(c, msg.Namespace)
		case msg.Event == "ack":
			var ack ackPayload
			if err := json.Unmarshal(msg.Data, &ack); err != nil {
				c.log.Warnf("wsproxy: malformed ack from client %s: %v", c.id, err)
				continue
			}
			c.proxy.ack(c, ack.ID)
		default:
			c.log.Warnf("wsproxy: unrecognized message from client %s: %+v", c.id, msg)
		}
	}
}
