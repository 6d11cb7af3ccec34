package broadcast

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livepulse/internal/domain"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	maxMessageSize    = 8 << 10
	messageBufferSize = 32
)

// Client is one hub connection. The hub goroutine reads from the connection,
// the writer goroutine started by newClient is the only one writing to it.
type Client struct {
	id          string
	connection  *websocket.Conn
	clock       clockwork.Clock
	sendChannel chan []byte
	doneChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func newClient(connection *websocket.Conn, clock clockwork.Clock) *Client {
	c := &Client{
		id:          uuid.NewString(),
		connection:  connection,
		clock:       clock,
		sendChannel: make(chan []byte, messageBufferSize),
		doneChannel: make(chan struct{}),
	}
	c.connection.SetReadLimit(maxMessageSize)
	c.configurePongHandler()
	c.wg.Add(1)
	go c.run()
	return c
}

func (c *Client) ID() string {
	return c.id
}

// Send enqueues msg without blocking. It fails with domain.ErrSendFailure when
// the queue is full or the client has been stopped.
func (c *Client) Send(msg []byte) error {
	select {
	case <-c.doneChannel:
		return domain.ErrSendFailure
	default:
	}

	select {
	case c.sendChannel <- msg:
		return nil
	default:
		return domain.ErrSendFailure
	}
}

func (c *Client) run() {
	ticker := c.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.wg.Done()

	for {
		select {
		case msg := <-c.sendChannel:
			c.updateWriteDeadline()
			if err := c.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = c.connection.Close()
				return
			}
		case <-ticker.Chan():
			c.updateWriteDeadline()
			if err := c.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.connection.Close()
				return
			}
		case <-c.doneChannel:
			return
		}
	}
}

// stop closes the connection and waits for the writer to exit. Safe to call repeatedly.
func (c *Client) stop() {
	c.stopOnce.Do(func() {
		close(c.doneChannel)
		_ = c.connection.Close()
	})
	c.wg.Wait()
}

// stopGraceful writes a close frame with code and reason once the writer has exited, then closes.
func (c *Client) stopGraceful(code int, reason string) {
	c.stopOnce.Do(func() {
		close(c.doneChannel)

		// The close frame must not race with a data write.
		c.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(code, reason)
		_ = c.connection.WriteControl(websocket.CloseMessage, closeMsg, c.clock.Now().Add(writeDeadline))
		_ = c.connection.Close()
	})
	c.wg.Wait()
}

func (c *Client) configurePongHandler() {
	c.extendReadDeadline()
	c.connection.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})
}

func (c *Client) updateWriteDeadline() {
	_ = c.connection.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
}

func (c *Client) extendReadDeadline() {
	_ = c.connection.SetReadDeadline(c.clock.Now().Add(pongDeadline))
}
