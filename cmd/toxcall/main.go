// Command toxcall runs a call coordinator on top of a Tox node and exposes
// it over a small HTTP API.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opd-ai/toxcall"
	"github.com/opd-ai/toxcall/audio"
	"github.com/opd-ai/toxcall/engine"
	"github.com/opd-ai/toxcall/internal/api"
	"github.com/opd-ai/toxcall/internal/config"
	"github.com/opd-ai/toxcall/metrics"
	"github.com/opd-ai/toxcore"
	"github.com/sirupsen/logrus"
)

func main() {
	os.Exit(realMain())
}

// realMain runs the daemon and returns the process exit code once every
// deferred cleanup has run.
func realMain() int {
	path := flag.String("config", "toxcall.ini", "path to the settings file")
	flag.Parse()

	settings, err := config.Load(*path)
	if err != nil {
		logrus.WithError(err).Error("Failed to load settings")
		return 1
	}

	logging := config.SetupLogging(settings)
	defer logging.Close()

	if settings.Watch() {
		watcher, err := config.Watch(*path, func(s *config.Settings) {
			logging.SetLevels(s.ConsoleLevel(), s.FileLevel())
			logrus.WithFields(logrus.Fields{
				"function":      "realMain",
				"console_level": s.ConsoleLevel(),
				"file_level":    s.FileLevel(),
			}).Info("Log levels reloaded")
		})
		if err != nil {
			logrus.WithError(err).Warn("Settings will not be reloaded")
		} else {
			defer watcher.Close()
		}
	}

	if err := run(settings); err != nil {
		logrus.WithError(err).Error("toxcall stopped")
		return 1
	}
	return 0
}

func run(settings *config.Settings) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tox, err := newTox(settings)
	if err != nil {
		return err
	}
	defer tox.Kill()

	go iterateTox(ctx, tox)

	source, sink := openDevices(settings)

	collector := metrics.NewCollector()
	coord := toxcall.New(toxcall.Options{
		Source:             source,
		Sink:               sink,
		BackgroundInterval: settings.BackgroundInterval(),
		PlaybackQueueSize:  settings.PlaybackQueue(),
		PlaybackGain:       settings.PlaybackGain(),
		QuitTimeout:        settings.QuitTimeout(),
		Metrics:            collector,
	})
	defer coord.Close()
	collector.Attach(coord)

	hub := api.NewHub()
	go hub.Run()
	defer hub.Stop()
	coord.OnEvent(hub.Broadcast)

	coord.OnError(func(message string) {
		logrus.WithFields(logrus.Fields{
			"function": "run",
			"message":  message,
		}).Warn("Call error")
	})

	coord.Initialize(engine.NewToxCore(tox))
	defer coord.Shutdown()

	if !settings.APIEnabled() {
		<-ctx.Done()
		logrus.WithField("function", "run").Info("Shutdown signal received")
		return nil
	}

	server := api.NewServer(coord, hub, api.Options{
		AudioBitRate: settings.AudioBitRate(),
		Metrics:      collector.Handler(),
	})
	return server.Serve(ctx, settings.APIListen())
}

func newTox(settings *config.Settings) (*toxcore.Tox, error) {
	options := toxcore.NewOptions()
	options.UDPEnabled = settings.UDPEnabled()
	options.IPv6Enabled = settings.IPv6Enabled()

	tox, err := toxcore.New(options)
	if err != nil {
		return nil, err
	}

	if addr := settings.BootstrapAddress(); addr != "" {
		if err := tox.Bootstrap(addr, settings.BootstrapPort(), settings.BootstrapKey()); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "newTox",
				"address":  addr,
				"error":    err.Error(),
			}).Warn("Bootstrap failed")
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "newTox",
		"address":  tox.SelfGetAddress(),
	}).Info("Tox node ready")
	return tox, nil
}

func iterateTox(ctx context.Context, tox *toxcore.Tox) {
	for tox.IsRunning() {
		tox.Iterate()
		select {
		case <-ctx.Done():
			return
		case <-time.After(tox.IterationInterval()):
		}
	}
}

// openDevices picks the audio devices named by the settings. System
// devices that cannot be created fall back to silence.
func openDevices(settings *config.Settings) (audio.Source, audio.Sink) {
	format := settings.AudioFormat()

	switch settings.Device() {
	case config.DeviceTone:
		return audio.NewToneSource(format, settings.ToneFrequency(), settings.ToneVolume()),
			audio.NewDiscardSink(format)
	case config.DeviceSilence:
		return audio.NewSilenceSource(format), audio.NewDiscardSink(format)
	case config.DeviceFile:
		return audio.NewFileSource(format, settings.AudioFile()), audio.NewDiscardSink(format)
	}

	var source audio.Source
	mic, err := audio.NewMicrophone(format)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "openDevices",
			"error":    err.Error(),
		}).Warn("Microphone unavailable, capturing silence")
		source = audio.NewSilenceSource(format)
	} else {
		source = mic
	}

	var sink audio.Sink
	speaker, err := audio.NewSpeaker(format)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "openDevices",
			"error":    err.Error(),
		}).Warn("Speaker unavailable, discarding playback")
		sink = audio.NewDiscardSink(format)
	} else {
		sink = speaker
	}

	return source, sink
}
