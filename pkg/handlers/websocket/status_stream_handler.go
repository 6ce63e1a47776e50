package websocket

import (
	"context"
	"time"

	"github.com/NeuralTrust/PrintGate/pkg/common"
	"github.com/NeuralTrust/PrintGate/pkg/config"
	domain "github.com/NeuralTrust/PrintGate/pkg/domain/errors"
	"github.com/NeuralTrust/PrintGate/pkg/infra/printer"
	infraWebsocket "github.com/NeuralTrust/PrintGate/pkg/infra/websocket"
	"github.com/gofiber/contrib/websocket"
	gorilla "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fastjson"
)

const (
	StatusUnknown     = "unknown"
	StatusUnreachable = "unreachable"

	writeWait = 5 * time.Second
)

// StatusMessage is the frame pushed to subscribers on every poll.
type StatusMessage struct {
	Status string `json:"status"`
}

type statusStreamHandler struct {
	logger     *logrus.Logger
	cfg        config.ProxyConfig
	printer    printer.Client
	interval   time.Duration
	pingPeriod time.Duration
	pongWait   time.Duration
	parsers    fastjson.ParserPool
}

func NewStatusStreamHandler(
	logger *logrus.Logger,
	cfg config.ProxyConfig,
	streamCfg config.StatusStreamConfig,
	printerClient printer.Client,
) Handler {
	h := &statusStreamHandler{
		logger:     logger,
		cfg:        cfg,
		printer:    printerClient,
		interval:   streamCfg.Interval,
		pingPeriod: streamCfg.PingPeriod,
		pongWait:   streamCfg.PongWait,
	}
	if h.interval <= 0 {
		h.interval = 10 * time.Second
	}
	if h.pongWait <= 0 {
		h.pongWait = 45 * time.Second
	}
	if h.pingPeriod <= 0 || h.pingPeriod >= h.pongWait {
		h.pingPeriod = h.pongWait * 9 / 10
	}
	return h
}

func (h *statusStreamHandler) Handle(c *websocket.Conn) {
	if semaphore, ok := c.Locals(string(common.WsSemaphoreKey)).(*infraWebsocket.Semaphore); ok {
		defer semaphore.Release()
	}
	log := h.logger.WithField("remote_addr", c.RemoteAddr().String())

	if missing := h.missingConfig(); missing != "" {
		log.WithField("variable", missing).Error("status stream is missing required configuration")
		msg := gorilla.FormatCloseMessage(gorilla.ClosePolicyViolation, domain.NewMissingConfigError(missing).Error())
		_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)) //nolint:errcheck
		return
	}

	if err := c.SetReadDeadline(time.Now().Add(h.pongWait)); err != nil {
		log.WithError(err).Error("failed to set read deadline")
		return
	}
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	// Subscribers never send anything meaningful; reading keeps the pong
	// handler running and tells us when the client goes away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.WithError(err).Debug("status stream read ended")
				}
				return
			}
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poll := time.NewTicker(h.interval)
	defer poll.Stop()
	ping := time.NewTicker(h.pingPeriod)
	defer ping.Stop()

	if err := h.push(ctx, c); err != nil {
		log.WithError(err).Debug("failed to push printer status")
		return
	}
	for {
		select {
		case <-done:
			return
		case <-poll.C:
			if err := h.push(ctx, c); err != nil {
				log.WithError(err).Debug("failed to push printer status")
				return
			}
		case <-ping.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.WithError(err).Debug("failed to send ping")
				return
			}
		}
	}
}

func (h *statusStreamHandler) missingConfig() string {
	switch {
	case h.cfg.UpstreamURL == "":
		return config.UpstreamURLEnv
	case h.cfg.APIKey == "":
		return config.UpstreamAPIKeyEnv
	}
	return ""
}

func (h *statusStreamHandler) push(ctx context.Context, c *websocket.Conn) error {
	status := h.poll(ctx)
	if err := c.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.WriteJSON(StatusMessage{Status: status})
}

func (h *statusStreamHandler) poll(ctx context.Context) string {
	resp, err := h.printer.Status(ctx, printer.Endpoint{
		URL:     h.cfg.UpstreamURL + h.cfg.StatusPath,
		APIKey:  h.cfg.APIKey,
		Timeout: h.cfg.StatusTimeout,
	})
	if err != nil {
		return StatusUnreachable
	}
	return h.statusOf(resp.Body)
}

// statusOf reads the "status" field of a printer status document. A body
// that is not JSON counts as unreachable; a missing or empty field as
// unknown.
func (h *statusStreamHandler) statusOf(body []byte) string {
	p := h.parsers.Get()
	defer h.parsers.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return StatusUnreachable
	}
	field := v.Get("status")
	if field == nil {
		return StatusUnknown
	}
	switch field.Type() {
	case fastjson.TypeString:
		if s := string(field.GetStringBytes()); s != "" {
			return s
		}
	case fastjson.TypeNumber:
		if field.GetFloat64() != 0 {
			return field.String()
		}
	case fastjson.TypeTrue, fastjson.TypeObject, fastjson.TypeArray:
		return field.String()
	}
	return StatusUnknown
}
