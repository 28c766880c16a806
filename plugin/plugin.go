package plugin

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/plcmodem/setting"
)

var (
	ErrNoTransaction = errors.New("settings changed outside begin/end")
	ErrNotReady      = errors.New("plugin not configured")
)

// Context is handed to every plugin instance at creation.
type Context struct {
	Log *log.Logger
}

func NewContext(name string) *Context {
	return &Context{Log: log.Default().WithPrefix(name)}
}

// Discard returns a context whose logger writes nowhere above error level.
func Discard(name string) *Context {
	l := log.NewWithOptions(os.Stderr, log.Options{Prefix: name, Level: log.ErrorLevel})
	return &Context{Log: l}
}

type Plugin interface {
	Settings() []setting.Definition
	BeginSettings()
	SetSetting(name string, v setting.Value) error
	EndSettings() error
	Ready() bool
	Err() error
	Release()
}

type Encoder interface {
	Plugin
	Reset() error
	PrepareNextSamples(buf []uint16)
}

type Decoder interface {
	Plugin
	Initialize(chunkSize int) error
	// ParseNextSamples appends the data decoded from samples to out.
	ParseNextSamples(samples []uint16, out []byte) []byte
	Terminate()
}

// Base stores settings for a plugin and tracks the begin/end transaction.
// Plugins embed it and call Finish from their EndSettings.
type Base struct {
	Ctx    *Context
	defs   []setting.Definition
	values map[string]setting.Value
	inTxn  bool
	ready  bool
	err    error
}

func NewBase(ctx *Context, defs []setting.Definition) Base {
	b := Base{
		Ctx:    ctx,
		defs:   defs,
		values: make(map[string]setting.Value, len(defs)),
	}
	for _, d := range defs {
		b.values[d.Name] = d.Default
	}
	return b
}

func (b *Base) Settings() []setting.Definition {
	return b.defs
}

func (b *Base) BeginSettings() {
	b.inTxn = true
	b.ready = false
	b.err = nil
}

func (b *Base) SetSetting(name string, v setting.Value) error {
	if !b.inTxn {
		return fmt.Errorf("%s: %w", name, ErrNoTransaction)
	}
	d, err := setting.Find(b.defs, name)
	if err != nil {
		return err
	}
	cv, err := setting.Coerce(d, v)
	if err != nil {
		return err
	}
	b.values[name] = cv
	b.Ctx.Log.Debugf("Set %s=%v", name, cv)
	return nil
}

// Finish closes the transaction, recording err as the configuration result.
func (b *Base) Finish(err error) error {
	b.inTxn = false
	b.err = err
	b.ready = err == nil
	if err != nil {
		b.Ctx.Log.Errorf("Configuration rejected: %v", err)
	}
	return err
}

func (b *Base) Ready() bool { return b.ready }

func (b *Base) Err() error {
	if b.err == nil && !b.ready {
		return ErrNotReady
	}
	return b.err
}

func (b *Base) Release() {
	b.ready = false
}

func (b *Base) Value(name string) setting.Value {
	v, ok := b.values[name]
	if !ok {
		panic(fmt.Sprintf("plugin: setting %q not declared", name))
	}
	return v
}

func (b *Base) Float(name string) float64 {
	f, ok := setting.Float(b.Value(name))
	if !ok {
		panic(fmt.Sprintf("plugin: setting %q is not numeric", name))
	}
	return f
}

func (b *Base) Int(name string) int {
	return int(b.Float(name))
}

func (b *Base) Bool(name string) bool {
	v, _ := b.Value(name).(setting.Bool)
	return bool(v)
}

func (b *Base) String(name string) string {
	return b.Value(name).String()
}

func (b *Base) Enum(name string) int {
	v, _ := b.Value(name).(setting.Enum)
	return v.Index
}

func (b *Base) Callback(name string) setting.Callback {
	v, _ := b.Value(name).(setting.Callback)
	return v
}
