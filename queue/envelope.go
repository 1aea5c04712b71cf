package queue

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrNoFormat is returned when no registered format matches a message.
	ErrNoFormat = errors.New("queue: no format matched message")

	// ErrInvalidEnvelope is returned when a matched message cannot be parsed.
	ErrInvalidEnvelope = errors.New("queue: invalid envelope")
)

// EnvelopeVersion marks messages written by EncodeEnvelope.
const EnvelopeVersion = "v1"

const base64Encoding = "base64"

// Format parses one message layout into a Message.
//
// Formats are registered with a Decoder and matched using their
// Discriminator before Parse is called, so a queue can carry messages of
// several layouts.
type Format interface {
	// Name returns the format identifier for logging.
	Name() string

	// Discriminator returns a predicate for cheap message detection.
	Discriminator() Discriminator

	// Parse converts raw bytes in this format to a Message.
	Parse(raw []byte) (Message, error)
}

// FormatFunc creates a Format from a name, discriminator and parse function.
func FormatFunc(name string, disc Discriminator, parse func([]byte) (Message, error)) Format {
	return &formatFunc{name: name, disc: disc, parse: parse}
}

type formatFunc struct {
	name  string
	disc  Discriminator
	parse func([]byte) (Message, error)
}

func (f *formatFunc) Name() string                      { return f.name }
func (f *formatFunc) Discriminator() Discriminator      { return f.disc }
func (f *formatFunc) Parse(raw []byte) (Message, error) { return f.parse(raw) }

// envelope is the layout written by transport adapters.
type envelope struct {
	Envelope string          `json:"envelope"`
	ID       string          `json:"id,omitempty"`
	Queue    string          `json:"queue"`
	Name     string          `json:"name"`
	Data     json.RawMessage `json:"data"`
	Encoding string          `json:"encoding,omitempty"`
	Options  Options         `json:"opts,omitempty"`
	Prefix   string          `json:"prefix,omitempty"`
	Attempt  int             `json:"attempt,omitempty"`
}

// EncodeEnvelope writes msg as a JSON envelope. JSON payloads are embedded
// as is; any other payload is base64 encoded.
func EncodeEnvelope(msg Message) ([]byte, error) {
	env := envelope{
		Envelope: EnvelopeVersion,
		ID:       msg.ID,
		Queue:    msg.Queue,
		Name:     msg.Name,
		Options:  msg.Options,
		Prefix:   msg.Prefix,
		Attempt:  msg.Attempt,
	}
	switch {
	case len(msg.Data) == 0:
		env.Data = json.RawMessage("null")
	case json.Valid(msg.Data):
		env.Data = json.RawMessage(msg.Data)
	default:
		b, err := json.Marshal(base64.StdEncoding.EncodeToString(msg.Data))
		if err != nil {
			return nil, err
		}
		env.Data = b
		env.Encoding = base64Encoding
	}
	return json.Marshal(env)
}

// EnvelopeFormat parses messages written by EncodeEnvelope.
func EnvelopeFormat() Format {
	return FormatFunc("envelope",
		And(FieldEquals("envelope", EnvelopeVersion), HasFields("queue", "name")),
		parseEnvelope)
}

func parseEnvelope(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	msg := Message{
		ID:      env.ID,
		Queue:   env.Queue,
		Name:    env.Name,
		Options: env.Options,
		Prefix:  env.Prefix,
		Attempt: env.Attempt,
	}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		msg.Data = []byte(env.Data)
	}
	if env.Encoding == base64Encoding {
		var s string
		if err := json.Unmarshal(env.Data, &s); err != nil {
			return Message{}, fmt.Errorf("%w: base64 data: %v", ErrInvalidEnvelope, err)
		}
		data, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Message{}, fmt.Errorf("%w: base64 data: %v", ErrInvalidEnvelope, err)
		}
		msg.Data = data
	}
	return msg, nil
}

// JobFormat parses job records exported by BullMQ-style queues, where the
// queue is named by "queueName", options live under "opts" and
// "attemptsMade" counts earlier runs. Envelopes never match.
func JobFormat() Format {
	disc := And(
		HasFields("queueName", "name", "data"),
		FieldAtLeast("attemptsMade", 0),
		Not(HasFields("envelope")),
	)
	return FormatFunc("job", disc, func(raw []byte) (Message, error) {
		var job struct {
			ID           string          `json:"id"`
			QueueName    string          `json:"queueName"`
			Name         string          `json:"name"`
			Data         json.RawMessage `json:"data"`
			Opts         Options         `json:"opts"`
			Prefix       string          `json:"prefix"`
			AttemptsMade int             `json:"attemptsMade"`
		}
		if err := json.Unmarshal(raw, &job); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
		}
		return Message{
			ID:      job.ID,
			Queue:   job.QueueName,
			Name:    job.Name,
			Data:    []byte(job.Data),
			Options: job.Opts,
			Prefix:  job.Prefix,
			Attempt: job.AttemptsMade + 1,
		}, nil
	})
}

// Decoder matches raw messages against its formats and parses them.
//
// Formats are tried in registration order, except that the last format to
// match is tried first on the next message.
//
// Decoder is safe for concurrent use after configuration. Do not call Add
// after calling Decode.
type Decoder struct {
	inspector Inspector
	formats   []Format

	lastMatch atomic.Value // stores string
}

// NewDecoder creates a Decoder over JSON messages. Without formats it
// accepts EnvelopeFormat and JobFormat.
func NewDecoder(formats ...Format) *Decoder {
	return NewDecoderWithInspector(JSONInspector(), formats...)
}

// NewDecoderWithInspector creates a Decoder using a custom Inspector.
func NewDecoderWithInspector(inspector Inspector, formats ...Format) *Decoder {
	if len(formats) == 0 {
		formats = []Format{EnvelopeFormat(), JobFormat()}
	}
	return &Decoder{inspector: inspector, formats: formats}
}

// Add registers another format.
func (d *Decoder) Add(f Format) {
	d.formats = append(d.formats, f)
}

// Decode parses raw with the first matching format.
func (d *Decoder) Decode(raw []byte) (Message, error) {
	f, err := d.Match(raw)
	if err != nil {
		return Message{}, err
	}
	msg, err := f.Parse(raw)
	if err != nil {
		return Message{}, fmt.Errorf("format %s: %w", f.Name(), err)
	}
	return msg, nil
}

// Match returns the format that applies to raw.
func (d *Decoder) Match(raw []byte) (Format, error) {
	view, err := d.inspector.Inspect(raw)
	if err != nil {
		return nil, err
	}

	if v := d.lastMatch.Load(); v != nil {
		if name, ok := v.(string); ok && name != "" {
			for _, f := range d.formats {
				if f.Name() == name && f.Discriminator().Match(view) {
					return f, nil
				}
			}
		}
	}

	for _, f := range d.formats {
		if f.Discriminator().Match(view) {
			d.lastMatch.Store(f.Name())
			return f, nil
		}
	}
	return nil, ErrNoFormat
}
