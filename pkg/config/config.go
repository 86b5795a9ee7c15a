// Package config describes an adapter class: the fixed queue counts and
// constants that an adapter instance is sized from at attach.
//
// Classes are loaded from YAML. Fields omitted from a document keep the
// values from [Default].
//
//	name: ef10ct-sim
//	evqs: 8
//	txqs: 8
//	vis: 64
//	txq_map: [0, 1, 2, 3, -1, -1, -1, -1]
//	flush_retry_delay: 100ms
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ardnew/softnic/pkg"
)

// NoTXQ marks an event queue without transmit capability in TXQMap.
const NoTXQ = -1

// MaxTXQs is the largest transmit queue count a class may declare.
const MaxTXQs = 64

// DefaultFlushRetryDelay is the delay between flush scans that found nothing.
const DefaultFlushRetryDelay = 100 * time.Millisecond

// Design holds the fixed design parameter values an adapter reports.
type Design struct {
	RXSuperbufBytes      uint64 `yaml:"rx_superbuf_bytes"`
	RXFrameOffset        uint64 `yaml:"rx_frame_offset"`
	TXApertureBytes      uint64 `yaml:"tx_aperture_bytes"`
	TXFIFOBytes          uint64 `yaml:"tx_fifo_bytes"`
	TimestampSubnanoBits uint64 `yaml:"timestamp_subnano_bits"`
	UnsolCreditSeqMask   uint64 `yaml:"unsol_credit_seq_mask"`
}

// Class is the configuration shared by every adapter of one hardware class.
type Class struct {
	// Name identifies the class in logs.
	Name string `yaml:"name"`
	// EVQs is the number of hardware event queues. Ids [0,EVQs) are real.
	EVQs int `yaml:"evqs"`
	// TXQs is the number of hardware transmit queues.
	TXQs int `yaml:"txqs"`
	// VIs is the size of the VI id space. Ids [EVQs,VIs) are dummy queues.
	VIs int `yaml:"vis"`
	// VIMin is the first VI instance number owned by the adapter.
	VIMin int `yaml:"vi_min"`
	// TXQMap gives the transmit queue capability of each event queue, or
	// NoTXQ. Event queues past the end of the map use TXQ(i) = i when i < TXQs.
	TXQMap []int `yaml:"txq_map,omitempty"`
	// FlushRetryDelay is how long the flush scanner waits before rescanning.
	FlushRetryDelay time.Duration `yaml:"flush_retry_delay"`
	// Design holds the values returned by design parameter queries.
	Design Design `yaml:"design"`
}

// Default returns the class of the simulated adapter.
func Default() Class {
	return Class{
		Name:            "ef10ct-sim",
		EVQs:            8,
		TXQs:            8,
		VIs:             64,
		FlushRetryDelay: DefaultFlushRetryDelay,
		Design: Design{
			RXSuperbufBytes:      1 << 20,
			RXFrameOffset:        16,
			TXApertureBytes:      0x1000,
			TXFIFOBytes:          0x8000,
			TimestampSubnanoBits: 2,
			UnsolCreditSeqMask:   0x7f,
		},
	}
}

// TXQ returns the transmit queue capability of event queue evq, or NoTXQ.
func (c *Class) TXQ(evq int) int {
	if evq < 0 || evq >= c.EVQs {
		return NoTXQ
	}
	if evq < len(c.TXQMap) {
		return c.TXQMap[evq]
	}
	if evq < c.TXQs {
		return evq
	}
	return NoTXQ
}

// Validate checks the class for internal consistency.
func (c *Class) Validate() error {
	switch {
	case c.EVQs <= 0:
		return fmt.Errorf("%w: evqs must be positive, got %d", pkg.ErrInvalidArgument, c.EVQs)
	case c.TXQs <= 0 || c.TXQs > MaxTXQs:
		return fmt.Errorf("%w: txqs must be in [1,%d], got %d", pkg.ErrInvalidArgument, MaxTXQs, c.TXQs)
	case c.VIs < c.EVQs:
		return fmt.Errorf("%w: vis (%d) smaller than evqs (%d)", pkg.ErrInvalidArgument, c.VIs, c.EVQs)
	case c.VIMin < 0:
		return fmt.Errorf("%w: vi_min must not be negative", pkg.ErrInvalidArgument)
	case len(c.TXQMap) > c.EVQs:
		return fmt.Errorf("%w: txq_map has %d entries for %d evqs", pkg.ErrInvalidArgument, len(c.TXQMap), c.EVQs)
	case c.FlushRetryDelay <= 0:
		return fmt.Errorf("%w: flush_retry_delay must be positive", pkg.ErrInvalidArgument)
	}
	for i, txq := range c.TXQMap {
		if txq != NoTXQ && (txq < 0 || txq >= c.TXQs) {
			return fmt.Errorf("%w: txq_map[%d] = %d out of range", pkg.ErrInvalidArgument, i, txq)
		}
	}
	return nil
}

// Parse decodes a YAML class over the defaults and validates it.
func Parse(data []byte) (Class, error) {
	c := Default()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Class{}, fmt.Errorf("parse class: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Class{}, err
	}
	return c, nil
}

// Load reads and parses the class file at path.
func Load(path string) (Class, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Class{}, fmt.Errorf("read class: %w", err)
	}
	return Parse(data)
}
