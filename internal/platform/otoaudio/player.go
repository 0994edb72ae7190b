// Package otoaudio plays looping alarm sounds through oto.
package otoaudio

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
	"git.home.luguber.info/inful/alarmd/internal/logfields"
	"git.home.luguber.info/inful/alarmd/internal/platform"
)

// Voice is one playback of a PCM stream. *oto.Player implements it.
type Voice interface {
	Play()
	Pause()
	IsPlaying() bool
	Close() error
}

// Device creates voices in its fixed output format.
type Device interface {
	Format() Format
	NewVoice(r io.Reader) Voice
}

type otoDevice struct {
	ctx    *oto.Context
	format Format
}

func (d *otoDevice) Format() Format             { return d.format }
func (d *otoDevice) NewVoice(r io.Reader) Voice { return d.ctx.NewPlayer(r) }

var (
	deviceOnce sync.Once
	device     *otoDevice
	deviceErr  error
)

// OpenDevice initializes the process-wide oto context. oto allows a single context
// per process, so later calls return the first result.
func OpenDevice(f Format) (Device, error) {
	deviceOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   f.SampleRate,
			ChannelCount: f.Channels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			deviceErr = errors.WrapError(err, errors.CategoryPlatform, "failed to open audio device").Build()
			return
		}
		<-ready
		device = &otoDevice{ctx: ctx, format: f}
	})
	if deviceErr != nil {
		return nil, deviceErr
	}
	return device, nil
}

// Player implements platform.SoundPlayer. Refs are WAV paths, relative ones resolved
// against the sound directory. The empty ref plays DefaultPath, or a synthesized tone
// when DefaultPath is unset.
type Player struct {
	device      Device
	dir         string
	defaultPath string
	logger      *slog.Logger
	poll        time.Duration

	mu    sync.Mutex
	cache map[string][]byte
}

type Option func(*Player)

func WithSoundDir(dir string) Option    { return func(p *Player) { p.dir = dir } }
func WithDefaultPath(path string) Option { return func(p *Player) { p.defaultPath = path } }
func WithLogger(l *slog.Logger) Option   { return func(p *Player) { p.logger = l } }

// NewPlayer returns a player on device. A nil device makes every PlayLooping fail with
// platform.ErrUnavailable, so sessions ring silently.
func NewPlayer(device Device, opts ...Option) *Player {
	p := &Player{
		device: device,
		logger: slog.Default(),
		poll:   10 * time.Millisecond,
		cache:  make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PlayLooping starts ref and loops it until the returned playback is stopped.
func (p *Player) PlayLooping(ref string) (platform.Playback, error) {
	if p.device == nil {
		return nil, platform.ErrUnavailable.WithContext("device", "audio")
	}
	pcm, err := p.load(ref)
	if err != nil {
		return nil, err
	}

	pb := &playback{stop: make(chan struct{}), done: make(chan struct{})}
	go pb.loop(p.device, pcm, p.poll)
	p.logger.Debug("Alarm sound started", slog.String("sound", ref))
	return pb, nil
}

func (p *Player) load(ref string) ([]byte, error) {
	path := ref
	if path == "" {
		path = p.defaultPath
	}
	if path != "" && !filepath.IsAbs(path) && p.dir != "" {
		path = filepath.Join(p.dir, path)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if pcm, ok := p.cache[path]; ok {
		return pcm, nil
	}

	want := p.device.Format()
	var pcm []byte
	if path == "" {
		pcm = alarmTone(want)
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapError(err, errors.CategoryPlatform, "alarm sound unreadable").
				WithContext("path", path).
				Build()
		}
		got, payload, err := parseWAV(data)
		if err != nil {
			return nil, err
		}
		if got != want {
			p.logger.Warn("Alarm sound format does not match the device",
				logfields.Path(path), slog.Int("sample_rate", got.SampleRate), slog.Int("channels", got.Channels))
			return nil, ErrInvalidWAV.WithContext("reason", "format mismatch").WithContext("path", path)
		}
		pcm = payload
	}
	p.cache[path] = pcm
	return pcm, nil
}

// playback loops one PCM buffer. Stop returns after the current voice is closed.
type playback struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func (pb *playback) Stop() {
	pb.once.Do(func() { close(pb.stop) })
	<-pb.done
}

func (pb *playback) loop(dev Device, pcm []byte, poll time.Duration) {
	defer close(pb.done)
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		voice := dev.NewVoice(bytes.NewReader(pcm))
		voice.Play()
		for voice.IsPlaying() {
			select {
			case <-pb.stop:
				voice.Pause()
				_ = voice.Close()
				return
			case <-ticker.C:
			}
		}
		_ = voice.Close()

		select {
		case <-pb.stop:
			return
		default:
		}
	}
}
