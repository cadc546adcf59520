package remote

import (
	"fmt"
	"sync"

	"github.com/camuig/coin-trader/internal/exchange"
	"github.com/camuig/coin-trader/internal/logger"
	"github.com/camuig/coin-trader/internal/metrics"
	"github.com/camuig/coin-trader/internal/trading"
)

const maxPending = 100

// Request is a queued command together with the way to answer its sender.
type Request struct {
	Command Command
	Source  string
	Reply   func(ok bool, message string)
}

func (r Request) reply(ok bool, message string) {
	if r.Reply != nil {
		r.Reply(ok, message)
	}
}

// Queue collects commands from all transports until the scheduler polls.
type Queue struct {
	mu    sync.Mutex
	items []Request
}

func NewQueue() *Queue {
	return &Queue{}
}

// Push reports false when the queue is full and the request was dropped.
func (q *Queue) Push(r Request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= maxPending {
		return false
	}
	q.items = append(q.items, r)
	return true
}

// Poll drains the queue in arrival order.
func (q *Queue) Poll() []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Applier validates commands and applies them to the runtime settings.
type Applier struct {
	settings *trading.Settings
	creds    exchange.CredentialSetter
	logger   *logger.Logger
}

// NewApplier creates an Applier. creds may be nil when the gateway does not
// support changing credentials at runtime.
func NewApplier(settings *trading.Settings, creds exchange.CredentialSetter, log *logger.Logger) *Applier {
	return &Applier{settings: settings, creds: creds, logger: log}
}

// Apply executes one command and returns a reply for its sender.
func (a *Applier) Apply(c Command) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}

	switch c.Kind {
	case SetInterval:
		d, _ := c.Interval()
		if err := a.settings.SetRefreshInterval(d); err != nil {
			return "", err
		}
		return fmt.Sprintf("refresh interval set to %s", d), nil

	case SetBaseCurrency:
		if err := a.settings.SetBaseCurrency(c.Value); err != nil {
			return "", err
		}
		return "base currency set to " + a.settings.BaseCurrency(), nil

	case Enable, Disable:
		on := c.Kind == Enable
		changed := a.settings.SetEnabled(on)
		metrics.SetEnabled(on)
		state := "disabled"
		if on {
			state = "enabled"
		}
		if !changed {
			return "trader already " + state, nil
		}
		return "trader " + state, nil

	case AddQuote:
		if err := a.settings.AddQuoteCurrency(c.Value); err != nil {
			return "", err
		}
		return fmt.Sprintf("quote currencies: %v", a.settings.QuoteCurrencies()), nil

	case RemoveQuote:
		if err := a.settings.RemoveQuoteCurrency(c.Value); err != nil {
			return "", err
		}
		return fmt.Sprintf("quote currencies: %v", a.settings.QuoteCurrencies()), nil

	case SetCredentials:
		if a.creds == nil {
			return "", fmt.Errorf("%w: gateway does not accept credentials", ErrInvalidCommand)
		}
		if err := a.creds.SetCredentials(c.Key, c.Secret); err != nil {
			return "", fmt.Errorf("set credentials: %w", err)
		}
		return "credentials updated", nil
	}

	return "", fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, c.Kind)
}

// Drain applies every pending request and answers each sender.
func (a *Applier) Drain(q *Queue) int {
	reqs := q.Poll()
	for _, r := range reqs {
		msg, err := a.Apply(r.Command)
		if err != nil {
			a.logger.Warn("remote command rejected",
				"command", r.Command.String(), "source", r.Source, "error", err)
			metrics.RemoteCommands.WithLabelValues(r.Command.Kind.label(), "rejected").Inc()
			r.reply(false, err.Error())
			continue
		}
		a.logger.Info("remote command applied", "command", r.Command.String(), "source", r.Source)
		metrics.RemoteCommands.WithLabelValues(r.Command.Kind.label(), "applied").Inc()
		r.reply(true, msg)
	}
	return len(reqs)
}
