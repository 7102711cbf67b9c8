package pwm

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"
)

// DefaultSysfsBase is where the kernel exposes PWM chips.
const DefaultSysfsBase = "/sys/class/pwm"

// Address locates a channel under the sysfs PWM tree.
type Address struct {
	Chip    int `yaml:"chip"`
	Channel int `yaml:"channel"`
}

// DefaultChannels maps board channel names to sysfs addresses.
//
// Edison exposes four channels on pwmchip0: GP12 is PWM0 and the Arduino
// breakout routes IO6 to PWM2. The i.MX6UL has one channel per controller.
var DefaultChannels = map[string]Address{
	"PWM0": {Chip: 0, Channel: 0},
	"PWM1": {Chip: 0, Channel: 1},
	"PWM7": {Chip: 6, Channel: 0},
	"GP12": {Chip: 0, Channel: 0},
	"IO6":  {Chip: 0, Channel: 2},
}

// ErrClosed is returned for writes to a closed channel.
var ErrClosed = errors.New("channel closed")

// Sysfs opens channels through /sys/class/pwm.
type Sysfs struct {
	Base     string
	Channels map[string]Address // consulted before DefaultChannels

	// ExportTimeout bounds the wait for pwmN to appear after export.
	ExportTimeout time.Duration
}

// NewSysfs returns a sysfs peripheral rooted at base (DefaultSysfsBase if empty).
func NewSysfs(base string, channels map[string]Address) *Sysfs {
	if base == "" {
		base = DefaultSysfsBase
	}
	return &Sysfs{Base: base, Channels: channels, ExportTimeout: 500 * time.Millisecond}
}

// Lookup returns the sysfs address for a channel name. Names of the form
// PWM<n> not in either table map to pwmchip0 channel n.
func (s *Sysfs) Lookup(name string) (Address, bool) {
	if a, ok := s.Channels[name]; ok {
		return a, true
	}
	if a, ok := DefaultChannels[name]; ok {
		return a, true
	}
	if rest, ok := strings.CutPrefix(name, "PWM"); ok {
		if n, err := strconv.Atoi(rest); err == nil && n >= 0 {
			return Address{Chip: 0, Channel: n}, true
		}
	}
	return Address{}, false
}

// Open exports the channel and returns it disabled.
func (s *Sysfs) Open(name string) (Channel, error) {
	addr, ok := s.Lookup(name)
	if !ok {
		return nil, &OpenError{Name: name, Err: errors.New("unknown channel name")}
	}

	chipPath := filepath.Join(s.Base, fmt.Sprintf("pwmchip%d", addr.Chip))
	npwm, err := readInt(filepath.Join(chipPath, "npwm"))
	if err != nil {
		return nil, &OpenError{Name: name, Err: fmt.Errorf("read npwm: %w", err)}
	}
	if addr.Channel >= npwm {
		return nil, &OpenError{Name: name, Err: fmt.Errorf("channel %d out of range (npwm=%d)", addr.Channel, npwm)}
	}

	c := &sysfsChannel{
		name:     name,
		chipPath: chipPath,
		channel:  addr.Channel,
		pwmPath:  filepath.Join(chipPath, fmt.Sprintf("pwm%d", addr.Channel)),
	}
	if err := c.ensureExported(s.ExportTimeout); err != nil {
		return nil, &OpenError{Name: name, Err: err}
	}
	return c, nil
}

type sysfsChannel struct {
	mu       sync.Mutex
	name     string
	chipPath string // /sys/class/pwm/pwmchipN
	pwmPath  string // /sys/class/pwm/pwmchipN/pwmM
	channel  int

	periodNS uint64
	exported bool // we exported it, so we unexport on Close
	settled  bool // output enabled once; later writes are not retried
	closed   bool
}

func (c *sysfsChannel) ensureExported(timeout time.Duration) error {
	if _, err := os.Stat(c.pwmPath); err == nil {
		return nil
	}
	exportPath := filepath.Join(c.chipPath, "export")
	if err := writeSysfs(exportPath, strconv.Itoa(c.channel)); err != nil {
		// If already exported by someone else, ignore.
		if _, statErr := os.Stat(c.pwmPath); statErr == nil {
			return nil
		}
		return fmt.Errorf("export: %w", err)
	}
	c.exported = true

	// Wait briefly for sysfs node to appear.
	deadline := time.Now().Add(timeout)
	for {
		if _, err := os.Stat(c.pwmPath); err == nil {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%s not created after export", c.pwmPath)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (c *sysfsChannel) SetFrequencyHz(hz float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.ioErr("frequency", ErrClosed)
	}

	f := physic.Frequency(hz * float64(physic.Hertz))
	if f <= 0 {
		return c.ioErr("frequency", fmt.Errorf("invalid frequency %v Hz", hz))
	}
	periodNS := uint64(f.Period().Nanoseconds())
	if periodNS == 0 {
		return c.ioErr("frequency", fmt.Errorf("frequency %s too high", f))
	}

	if err := c.writeUint("period", periodNS); err != nil {
		return c.ioErr("frequency", err)
	}
	c.periodNS = periodNS
	return nil
}

func (c *sysfsChannel) SetDutyCycle(p float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.ioErr("duty", ErrClosed)
	}
	if math.IsNaN(p) || p < 0 || p > 100 {
		return c.ioErr("duty", fmt.Errorf("duty %v out of range [0,100]", p))
	}
	if c.periodNS == 0 {
		return c.ioErr("duty", errors.New("frequency not set"))
	}

	duty := uint64(math.Round(float64(c.periodNS) * (p / 100.0)))
	if duty > c.periodNS {
		duty = c.periodNS
	}
	if err := c.writeUint("duty_cycle", duty); err != nil {
		return c.ioErr("duty", err)
	}
	return nil
}

func (c *sysfsChannel) SetEnabled(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.ioErr("enable", ErrClosed)
	}
	if err := c.writeBool("enable", on); err != nil {
		return c.ioErr("enable", err)
	}
	if on {
		c.settled = true
	}
	return nil
}

// Close disables the output and unexports the channel if Open exported it.
func (c *sysfsChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if err := c.writeBool("enable", false); err != nil {
		errs = append(errs, fmt.Errorf("disable: %w", err))
	}
	if c.exported {
		if err := c.write(filepath.Join(c.chipPath, "unexport"), strconv.Itoa(c.channel)); err != nil {
			errs = append(errs, fmt.Errorf("unexport: %w", err))
		}
	}
	if len(errs) > 0 {
		return c.ioErr("close", errors.Join(errs...))
	}
	return nil
}

func (c *sysfsChannel) ioErr(op string, err error) error {
	return &IOError{Op: op, Channel: c.name, Err: err}
}

// write retries permission races only until the output is first enabled.
// After that a failed write is reported at once, with c.mu still held by
// the caller for as short a time as possible.
func (c *sysfsChannel) write(path, value string) error {
	if c.settled {
		return writeOnce(path, value)
	}
	return writeSysfs(path, value)
}

func (c *sysfsChannel) writeUint(name string, v uint64) error {
	return c.write(filepath.Join(c.pwmPath, name), strconv.FormatUint(v, 10))
}

func (c *sysfsChannel) writeBool(name string, v bool) error {
	val := "0"
	if v {
		val = "1"
	}
	return c.write(filepath.Join(c.pwmPath, name), val)
}

// sysfsRetryWindow bounds retries of a single attribute write made while
// the channel is being exported and configured.
var sysfsRetryWindow = 2 * time.Second

func writeSysfs(path string, value string) error {
	// Use O_WRONLY without O_TRUNC/O_CREATE: some sysfs attributes reject
	// truncation. Right after export, udev may still be adjusting permissions,
	// so open() can briefly fail with EACCES or ENOENT.
	deadline := time.Now().Add(sysfsRetryWindow)
	for {
		err := writeOnce(path, value)
		if err == nil {
			return nil
		}
		if time.Now().Before(deadline) && isRetryableSysfsErr(err) {
			time.Sleep(25 * time.Millisecond)
			continue
		}
		return err
	}
}

func writeOnce(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	_, werr := f.WriteString(value)
	cerr := f.Close()
	return errors.Join(werr, cerr)
}

func readInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, errors.New("empty")
	}
	return strconv.Atoi(s)
}
