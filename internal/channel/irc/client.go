// Package irc implements the IRC messaging channel using the girc library.
package irc

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lrstanley/girc"

	"github.com/soyeahso/arbiter/internal/config"
	"github.com/soyeahso/arbiter/internal/domain"
	"github.com/soyeahso/arbiter/internal/logging"
	"github.com/soyeahso/arbiter/internal/version"
)

const (
	channelID = "irc"

	// maxLineBytes keeps a PRIVMSG well under the 512 byte protocol limit
	// once the prefix and target are added.
	maxLineBytes = 400

	minBackoff = time.Second
	maxBackoff = time.Minute

	refusalNotice = "Only channel operators can configure agents here."
)

var (
	ErrNotConnected = errors.New("irc: not connected")
	ErrNoTarget     = errors.New("irc: no target specified")
)

// Channel implements domain.Channel for IRC.
type Channel struct {
	cfg config.IRCConfig
	log *logging.Logger

	mu      sync.RWMutex
	client  *girc.Client
	handler func(msg domain.InboundMessage)
	running bool
	lastErr string
}

// New creates an IRC channel from configuration.
func New(cfg config.IRCConfig, log *logging.Logger) *Channel {
	return &Channel{
		cfg: cfg,
		log: log.Sub("irc"),
	}
}

func (c *Channel) ID() string { return channelID }

func (c *Channel) OnMessage(handler func(msg domain.InboundMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Status returns the current runtime status.
func (c *Channel) Status() domain.ChannelStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.ChannelStatus{
		ChannelID: channelID,
		Connected: c.client != nil && c.client.IsConnected(),
		Running:   c.running,
		LastError: c.lastErr,
	}
}

func (c *Channel) port() int {
	if c.cfg.Port != 0 {
		return c.cfg.Port
	}
	if c.cfg.UseTLS {
		return 6697
	}
	return 6667
}

func (c *Channel) newClient() *girc.Client {
	gircCfg := girc.Config{
		Server:  c.cfg.Server,
		Port:    c.port(),
		Nick:    c.cfg.Nick,
		User:    c.cfg.Nick,
		Name:    "Arbiter coordinator",
		SSL:     c.cfg.UseTLS,
		Version: version.UserAgent(),
	}
	if c.cfg.UseTLS {
		gircCfg.TLSConfig = &tls.Config{ServerName: c.cfg.Server}
	}
	if c.cfg.SASL && c.cfg.Password != "" {
		gircCfg.SASL = &girc.SASLPlain{User: c.cfg.Nick, Pass: c.cfg.Password}
	} else if c.cfg.Password != "" {
		gircCfg.ServerPass = c.cfg.Password
	}

	client := girc.New(gircCfg)
	client.Handlers.Add(girc.CONNECTED, c.onConnected)
	client.Handlers.Add(girc.PRIVMSG, c.onPrivmsg)
	client.Handlers.Add(girc.DISCONNECTED, c.onDisconnected)
	return client
}

// Start connects to the IRC server and keeps reconnecting with exponential
// backoff until ctx is cancelled.
func (c *Channel) Start(ctx context.Context) error {
	client := c.newClient()

	c.mu.Lock()
	c.client = client
	c.running = true
	c.lastErr = ""
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	backoff := minBackoff
	for {
		c.log.Info().
			Str("server", c.cfg.Server).
			Int("port", c.port()).
			Str("nick", c.cfg.Nick).
			Strs("channels", c.cfg.Channels).
			Bool("tls", c.cfg.UseTLS).
			Msg("connecting to IRC")

		began := time.Now()
		errCh := make(chan error, 1)
		go func() { errCh <- client.Connect() }()

		select {
		case <-ctx.Done():
			client.Close()
			select {
			case <-errCh:
			case <-time.After(5 * time.Second):
				c.log.Warn().Msg("IRC connection did not close in time")
			}
			return nil
		case err := <-errCh:
			if err != nil {
				c.mu.Lock()
				c.lastErr = err.Error()
				c.mu.Unlock()
			}
			if time.Since(began) > maxBackoff {
				backoff = minBackoff
			}
			c.log.Warn().Err(err).Dur("retryIn", backoff).Msg("IRC connection ended")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// Stop gracefully disconnects from the IRC server.
func (c *Channel) Stop(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil && c.client.IsConnected() {
		c.log.Info().Msg("disconnecting from IRC")
		c.client.Quit("Arbiter shutting down")
	}
	c.running = false
	return nil
}

// Send delivers a message to an IRC channel or nick, one PRIVMSG per line.
func (c *Channel) Send(_ context.Context, msg domain.OutboundMessage) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	if client == nil || !client.IsConnected() {
		return ErrNotConnected
	}
	if msg.To == "" {
		return ErrNoTarget
	}

	lines := splitMessage(msg.Body, maxLineBytes)
	for _, line := range lines {
		client.Cmd.Message(msg.To, line)
	}

	c.log.Debug().
		Str("to", msg.To).
		Int("lines", len(lines)).
		Msg("sent IRC message")
	return nil
}

func (c *Channel) onConnected(client *girc.Client, _ girc.Event) {
	c.log.Info().Str("nick", client.GetNick()).Msg("connected to IRC")
	c.mu.Lock()
	c.lastErr = ""
	c.mu.Unlock()

	for _, ch := range c.cfg.Channels {
		c.log.Info().Str("channel", ch).Msg("joining channel")
		client.Cmd.Join(ch)
	}
}

func (c *Channel) onDisconnected(_ *girc.Client, _ girc.Event) {
	c.log.Warn().Msg("disconnected from IRC")
}

func (c *Channel) onPrivmsg(client *girc.Client, e girc.Event) {
	if e.Source == nil || len(e.Params) == 0 {
		return
	}

	l := line{
		nick:    e.Source.Name,
		target:  e.Params[0],
		private: !e.IsFromChannel(),
		body:    e.Last(),
	}
	if e.IsAction() {
		l.body = e.StripAction()
	}

	isOp := func(nick, channel string) bool {
		user := client.LookupUser(nick)
		if user == nil {
			return false
		}
		perms, ok := user.Perms.Lookup(channel)
		return ok && perms.IsAdmin()
	}

	switch screen(c.cfg, client.GetNick(), l, isOp) {
	case verdictIgnore:
		c.log.Debug().
			Str("nick", l.nick).
			Str("target", l.target).
			Msg("ignoring IRC message")
	case verdictRefuse:
		c.log.Debug().
			Str("nick", l.nick).
			Str("target", l.target).
			Msg("refusing IRC message from non-operator")
		client.Cmd.Notice(l.nick, refusalNotice)
	case verdictDeliver:
		c.deliver(l)
	}
}

func (c *Channel) deliver(l line) {
	msg := domain.InboundMessage{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		From:      l.nick,
		ChatID:    l.target,
		ChatType:  domain.ChatTypeGroup,
		Body:      l.body,
		Timestamp: time.Now(),
	}
	if l.private {
		msg.ChatID = l.nick
		msg.ChatType = domain.ChatTypeDM
	}

	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()

	if handler != nil {
		handler(msg)
	}
}

// line is a PRIVMSG reduced to what screening needs.
type line struct {
	nick    string
	target  string
	private bool
	body    string
}

type verdict int

const (
	verdictDeliver verdict = iota
	verdictIgnore
	verdictRefuse
)

// screen decides whether an incoming line becomes a turn. Channel lines must
// contain the mention keyword; private lines need not. When an owner is set,
// everyone else is ignored. When opOnly is set, senders without operator
// status are refused; in private, op status in any joined channel counts.
func screen(cfg config.IRCConfig, self string, l line, isOp func(nick, channel string) bool) verdict {
	if strings.EqualFold(l.nick, self) {
		return verdictIgnore
	}

	if !l.private {
		keyword := cfg.Mention
		if keyword == "" {
			keyword = self
		}
		if keyword == "" || !strings.Contains(strings.ToLower(l.body), strings.ToLower(keyword)) {
			return verdictIgnore
		}
	}

	if cfg.Owner != "" && !strings.EqualFold(l.nick, cfg.Owner) {
		return verdictIgnore
	}

	if cfg.OpOnly {
		if !l.private {
			if !isOp(l.nick, l.target) {
				return verdictRefuse
			}
			return verdictDeliver
		}
		for _, ch := range cfg.Channels {
			if isOp(l.nick, ch) {
				return verdictDeliver
			}
		}
		return verdictRefuse
	}

	return verdictDeliver
}

// splitMessage breaks text into IRC-sized lines. PRIVMSG cannot carry
// newlines, so each input line is sent separately; blank lines are dropped
// and long lines are cut at rune boundaries to at most maxLen bytes.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for _, raw := range strings.Split(text, "\n") {
		raw = strings.TrimRight(raw, "\r")
		if strings.TrimSpace(raw) == "" {
			continue
		}
		for len(raw) > maxLen {
			cut := maxLen
			for cut > 0 && !utf8.RuneStart(raw[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxLen
			}
			chunks = append(chunks, raw[:cut])
			raw = raw[cut:]
		}
		chunks = append(chunks, raw)
	}
	return chunks
}
