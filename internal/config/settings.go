// Package config loads the daemon settings and sets up logging.
package config

import (
	"fmt"
	"time"

	"github.com/opd-ai/toxcall/audio"
	"github.com/sirupsen/logrus"
	ini "gopkg.in/ini.v1"
)

// Audio device kinds.
const (
	DeviceSystem  = "system"
	DeviceTone    = "tone"
	DeviceSilence = "silence"
	DeviceFile    = "file"
)

// Settings holds configuration loaded from toxcall.ini.
type Settings struct {
	backgroundInterval time.Duration
	quitTimeout        time.Duration
	audioBitRate       uint32

	device        string
	audioFile     string
	sampleRate    uint32
	channels      uint8
	frameDuration time.Duration
	toneFrequency float64
	toneVolume    float64
	playbackGain  float64
	playbackQueue int

	consoleLevel logrus.Level
	fileLevel    logrus.Level
	logFile      string
	logMaxSize   int
	logBackups   int
	watch        bool

	apiEnabled bool
	apiListen  string

	udpEnabled       bool
	ipv6Enabled      bool
	bootstrapAddress string
	bootstrapPort    uint16
	bootstrapKey     string
}

// Load reads and validates the settings file at path.
func Load(path string) (*Settings, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load settings %s: %w", path, err)
	}
	return LoadSettings(cfg)
}

// LoadSettings reads configuration from ini file and validates it.
func LoadSettings(cfg *ini.File) (*Settings, error) {
	s := &Settings{}
	var err error

	sec := cfg.Section("toxcall")
	s.backgroundInterval = sec.Key("background_interval").MustDuration(30 * time.Second)
	s.quitTimeout = sec.Key("quit_timeout").MustDuration(2 * time.Second)
	s.audioBitRate = uint32(sec.Key("audio_bit_rate").MustUint(48))

	sec = cfg.Section("audio")
	s.device = sec.Key("device").In(DeviceSystem, []string{DeviceSystem, DeviceTone, DeviceSilence, DeviceFile})
	s.audioFile = sec.Key("file").String()
	s.sampleRate = uint32(sec.Key("sample_rate").MustUint(48000))
	s.channels = uint8(sec.Key("channels").MustUint(1))
	s.frameDuration = time.Duration(sec.Key("frame_ms").MustInt(20)) * time.Millisecond
	s.toneFrequency = sec.Key("tone_frequency").MustFloat64(440)
	s.toneVolume = sec.Key("tone_volume").MustFloat64(0.2)
	s.playbackGain = sec.Key("playback_gain").MustFloat64(1)
	s.playbackQueue = sec.Key("playback_queue").MustInt(32)

	sec = cfg.Section("logging")
	if s.consoleLevel, err = logrus.ParseLevel(sec.Key("console_level").MustString("info")); err != nil {
		return nil, fmt.Errorf("logging.console_level: %w", err)
	}
	if s.fileLevel, err = logrus.ParseLevel(sec.Key("file_level").MustString("debug")); err != nil {
		return nil, fmt.Errorf("logging.file_level: %w", err)
	}
	s.logFile = sec.Key("file").MustString("toxcall.log")
	s.logMaxSize = sec.Key("max_size").MustInt(100)
	s.logBackups = sec.Key("max_backups").MustInt(1)
	s.watch = sec.Key("watch").MustBool(true)

	sec = cfg.Section("api")
	s.apiEnabled = sec.Key("enabled").MustBool(true)
	s.apiListen = sec.Key("listen").MustString("127.0.0.1:8088")

	sec = cfg.Section("tox")
	s.udpEnabled = sec.Key("udp_enabled").MustBool(true)
	s.ipv6Enabled = sec.Key("ipv6_enabled").MustBool(true)
	s.bootstrapAddress = sec.Key("bootstrap_address").String()
	s.bootstrapPort = uint16(sec.Key("bootstrap_port").MustUint(33445))
	s.bootstrapKey = sec.Key("bootstrap_public_key").String()

	if err := s.AudioFormat().Validate(); err != nil {
		return nil, fmt.Errorf("audio: %w", err)
	}
	if s.device == DeviceFile && s.audioFile == "" {
		return nil, fmt.Errorf("audio.file must be set when audio.device is %s", DeviceFile)
	}
	if s.playbackQueue <= 0 {
		return nil, fmt.Errorf("audio.playback_queue must be positive")
	}
	if (s.bootstrapAddress == "") != (s.bootstrapKey == "") {
		return nil, fmt.Errorf("tox bootstrap_address and bootstrap_public_key must be set together")
	}

	return s, nil
}

// AudioFormat returns the device format described by the [audio] section.
func (s *Settings) AudioFormat() audio.Format {
	return audio.Format{SampleRate: s.sampleRate, Channels: s.channels, FrameDuration: s.frameDuration}
}

func (s *Settings) BackgroundInterval() time.Duration { return s.backgroundInterval }
func (s *Settings) QuitTimeout() time.Duration        { return s.quitTimeout }
func (s *Settings) AudioBitRate() uint32              { return s.audioBitRate }

func (s *Settings) Device() string               { return s.device }
func (s *Settings) AudioFile() string            { return s.audioFile }
func (s *Settings) SampleRate() uint32           { return s.sampleRate }
func (s *Settings) Channels() uint8              { return s.channels }
func (s *Settings) FrameDuration() time.Duration { return s.frameDuration }
func (s *Settings) ToneFrequency() float64       { return s.toneFrequency }
func (s *Settings) ToneVolume() float64          { return s.toneVolume }
func (s *Settings) PlaybackGain() float64        { return s.playbackGain }
func (s *Settings) PlaybackQueue() int           { return s.playbackQueue }

func (s *Settings) ConsoleLevel() logrus.Level { return s.consoleLevel }
func (s *Settings) FileLevel() logrus.Level    { return s.fileLevel }
func (s *Settings) LogFile() string            { return s.logFile }
func (s *Settings) LogMaxSize() int            { return s.logMaxSize }
func (s *Settings) LogBackups() int            { return s.logBackups }
func (s *Settings) Watch() bool                { return s.watch }

func (s *Settings) APIEnabled() bool  { return s.apiEnabled }
func (s *Settings) APIListen() string { return s.apiListen }

func (s *Settings) UDPEnabled() bool         { return s.udpEnabled }
func (s *Settings) IPv6Enabled() bool        { return s.ipv6Enabled }
func (s *Settings) BootstrapAddress() string { return s.bootstrapAddress }
func (s *Settings) BootstrapPort() uint16    { return s.bootstrapPort }
func (s *Settings) BootstrapKey() string     { return s.bootstrapKey }
