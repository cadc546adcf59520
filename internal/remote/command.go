package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/camuig/coin-trader/internal/config"
)

// Kind names a remote command.
type Kind string

const (
	SetInterval     Kind = "set_interval"
	SetBaseCurrency Kind = "set_base_currency"
	Enable          Kind = "enable"
	Disable         Kind = "disable"
	AddQuote        Kind = "add_quote"
	RemoveQuote     Kind = "remove_quote"
	SetCredentials  Kind = "set_credentials"
)

func (k Kind) label() string {
	switch k {
	case SetInterval, SetBaseCurrency, Enable, Disable, AddQuote, RemoveQuote, SetCredentials:
		return string(k)
	}
	return "unknown"
}

var ErrInvalidCommand = errors.New("invalid command")

// Command is one instruction received from a companion client.
type Command struct {
	Kind   Kind   `json:"type"`
	Value  string `json:"value,omitempty"`
	Key    string `json:"key,omitempty"`
	Secret string `json:"secret,omitempty"`
}

// Validate checks the command payload. Out-of-range values are rejected,
// never clamped.
func (c Command) Validate() error {
	switch c.Kind {
	case SetInterval:
		d, err := parseInterval(c.Value)
		if err != nil {
			return err
		}
		return config.ValidateInterval(d)
	case SetBaseCurrency, AddQuote, RemoveQuote:
		return config.ValidateCurrency(config.NormalizeCurrency(c.Value))
	case SetCredentials:
		if strings.TrimSpace(c.Key) == "" || strings.TrimSpace(c.Secret) == "" {
			return fmt.Errorf("%w: key and secret must not be empty", ErrInvalidCommand)
		}
		return nil
	case Enable, Disable:
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, c.Kind)
	}
}

// Interval returns the parsed value of a set_interval command.
func (c Command) Interval() (time.Duration, error) {
	return parseInterval(c.Value)
}

// String hides credentials so commands can be logged.
func (c Command) String() string {
	if c.Kind == SetCredentials {
		return string(c.Kind)
	}
	if c.Value == "" {
		return string(c.Kind)
	}
	return string(c.Kind) + " " + c.Value
}

// ParseJSON decodes a command sent over the websocket, e.g.
// {"type":"set_interval","value":"30s"}.
func ParseJSON(data []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

var textCommands = map[string]Kind{
	"/interval":    SetInterval,
	"/base":        SetBaseCurrency,
	"/enable":      Enable,
	"/disable":     Disable,
	"/addquote":    AddQuote,
	"/removequote": RemoveQuote,
	"/credentials": SetCredentials,
}

// ParseText decodes a chat command such as "/interval 30s" or
// "/credentials KEY SECRET".
func ParseText(text string) (Command, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty message", ErrInvalidCommand)
	}

	name := strings.ToLower(fields[0])
	if i := strings.IndexByte(name, '@'); i > 0 {
		name = name[:i]
	}
	kind, ok := textCommands[name]
	if !ok {
		return Command{}, fmt.Errorf("%w: unknown command %s", ErrInvalidCommand, fields[0])
	}

	c := Command{Kind: kind}
	args := fields[1:]
	switch kind {
	case SetCredentials:
		if len(args) == 2 {
			c.Key, c.Secret = args[0], args[1]
		}
	case Enable, Disable:
	default:
		if len(args) == 1 {
			c.Value = args[0]
		}
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// parseInterval accepts a Go duration ("30s", "2m") or plain seconds ("30").
func parseInterval(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, fmt.Errorf("%w: missing interval", ErrInvalidCommand)
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		// Checked in seconds: the multiplication below overflows for huge values.
		if secs < int64(config.MinInterval/time.Second) || secs > int64(config.MaxInterval/time.Second) {
			return 0, fmt.Errorf("%w: %s seconds not in [%s, %s]", config.ErrInvalidInterval, v, config.MinInterval, config.MaxInterval)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: bad interval %q", ErrInvalidCommand, v)
	}
	return d, nil
}
