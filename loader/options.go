package loader

import (
	"encoding/binary"
	"io"

	"github.com/sirupsen/logrus"
)

type settings struct {
	log      logrus.FieldLogger
	random   io.Reader
	wordSize int
	order    binary.ByteOrder
}

// Option configures Open and BuildStack.
type Option func(*settings)

// WithLogger routes diagnostics to log. Without it nothing is logged.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *settings) {
		if log != nil {
			s.log = log
		}
	}
}

// WithRandom makes BuildStack place 16 bytes read from r on the stack and
// point AT_RANDOM at them.
func WithRandom(r io.Reader) Option {
	return func(s *settings) {
		s.random = r
	}
}

// WithWordSize sets the pointer width BuildStack writes, 4 or 8 bytes.
// The default is 8.
func WithWordSize(n int) Option {
	return func(s *settings) {
		if n == 4 || n == 8 {
			s.wordSize = n
		}
	}
}

// WithByteOrder sets the byte order BuildStack writes words in. The default
// is little endian.
func WithByteOrder(order binary.ByteOrder) Option {
	return func(s *settings) {
		if order != nil {
			s.order = order
		}
	}
}

func newSettings(opts []Option) *settings {
	s := &settings{
		log:      DiscardLogger(),
		wordSize: 8,
		order:    binary.LittleEndian,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DiscardLogger is the sink used when no logger is configured.
func DiscardLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.PanicLevel)
	return log
}
