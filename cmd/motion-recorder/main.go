// motion-recorder - record video footage of motion seen by a network camera
//  Copyright (C) 2024, The Cacophony Project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	arg "github.com/alexflint/go-arg"
	"github.com/coreos/go-systemd/daemon"

	"github.com/TheCacophonyProject/motion-recorder/frame"
	"github.com/TheCacophonyProject/motion-recorder/location"
	"github.com/TheCacophonyProject/motion-recorder/motion"
	"github.com/TheCacophonyProject/motion-recorder/opencv"
	"github.com/TheCacophonyProject/motion-recorder/output"
	"github.com/TheCacophonyProject/motion-recorder/recorder"
	"github.com/TheCacophonyProject/motion-recorder/stream"
	"github.com/TheCacophonyProject/motion-recorder/throttle"
)

var version = "<not set>"

type Args struct {
	ConfigFile   string `arg:"-c,--config" help:"path to configuration file"`
	LocationFile string `arg:"-l,--location" help:"path to location file"`
	Timestamps   bool   `arg:"-t,--timestamps" help:"include timestamps in log output"`
	TestFile     string `arg:"-f,--testfile" help:"run a video file, or a directory of them, through motion detection to see what would be recorded"`
	Verbose      bool   `arg:"-v,--verbose" help:"make logging more verbose"`
	DryRun       bool   `arg:"--dry-run" help:"detect motion without writing any recordings"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	args.ConfigFile = "/etc/motion-recorder.yaml"
	args.LocationFile = location.DefaultLocationFile()
	arg.MustParse(&args)
	return args
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	args := procArgs()

	if !args.Timestamps {
		log.SetFlags(0) // Removes default timestamp flag
	}

	log.Printf("running version: %s", version)
	conf, err := ParseConfigFiles(args.ConfigFile, args.LocationFile)
	if err != nil {
		return err
	}
	if args.Verbose {
		conf.Motion.Verbose = true
	}

	logConfig(conf)

	if args.TestFile != "" {
		return runPlayback(conf, args.TestFile)
	}

	if err := conf.Camera.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var listeners recordingListeners
	var throttleListener throttle.ThrottledEventListener
	if reporter := newConfiguredReporter(conf); reporter != nil {
		defer reporter.Close()
		listeners = append(listeners, reporter)
		throttleListener = reporter
	}
	if conf.LEDs.Recording != "" {
		led, err := newRecordingLED(conf.LEDs.Recording)
		if err != nil {
			return err
		}
		defer led.Close()
		listeners = append(listeners, led)
	}

	sinks, err := newSinkFactory(conf, args.DryRun, throttleListener)
	if err != nil {
		return err
	}

	lat, lon := conf.Location.Coordinates()
	window, err := conf.Recorder.NewWindow(lat, lon)
	if err != nil {
		return err
	}

	log.Printf("connecting to %s", conf.Camera.Redacted())
	src, err := opencv.Open(conf.Camera)
	if err != nil {
		return err
	}
	log.Printf("camera resolution: %dx%d", src.Width(), src.Height())
	reader := stream.NewReader(src, conf.Stream)

	spec := conf.Recorder.Spec(src.Width(), src.Height())
	controller, err := motion.NewEpisodeController(&conf.Motion, &conf.Recorder, spec, sinks, window, listeners)
	if err != nil {
		reader.Close()
		return err
	}

	if conf.Events.DBus {
		log.Println("starting d-bus service")
		snapshots := newSnapshotter(conf.OutputDir, controller.LatestFrame)
		defer snapshots.Delete()
		err := startService(snapshots, func() recorderStatus {
			return recorderStatus{
				State:    controller.State().String(),
				Read:     reader.Read(),
				Dropped:  reader.Dropped(),
				Buffered: controller.Buffered(),
			}
		})
		if err != nil {
			reader.Close()
			return err
		}
	}

	scorer := newScorer(conf.Motion)
	if c, ok := scorer.(io.Closer); ok {
		defer c.Close()
	}

	daemon.SdNotify(false, "READY=1")
	err = processFrames(ctx, reader, scorer, controller, conf.Recorder.FrameRate)

	// Stop reading before the episode is finalised so nothing new
	// arrives while the file is being closed.
	reader.Stop()
	controller.Close()
	if cerr := reader.Close(); cerr != nil {
		log.Printf("error closing camera: %v", cerr)
	}
	return err
}

type frameReader interface {
	Next(ctx context.Context) (*frame.Frame, error)
	Dropped() uint64
}

// processFrames feeds frames to the controller until the stream ends,
// the context is cancelled or reading fails.
func processFrames(
	ctx context.Context,
	reader frameReader,
	scorer motion.Scorer,
	controller *motion.EpisodeController,
	fps int,
) error {
	frameLogIntervalFirstMin := 15 * fps
	frameLogInterval := 60 * 5 * fps
	framesPerSdNotify := 5 * fps
	notifyCount := 0

	log.Print("reading frames")
	totalFrames := 0
	for {
		if ctx.Err() != nil {
			log.Print("shutting down")
			return nil
		}
		f, err := reader.Next(ctx)
		if err == io.EOF {
			log.Printf("camera stream ended after %d frames", totalFrames)
			return nil
		}
		if errors.Is(err, context.Canceled) {
			log.Print("shutting down")
			return nil
		}
		if err != nil {
			return err
		}
		totalFrames++

		if totalFrames%frameLogIntervalFirstMin == 0 &&
			totalFrames <= 60*fps || totalFrames%frameLogInterval == 0 {
			log.Printf("%d frames read, %d dropped", totalFrames, reader.Dropped())
		}
		if notifyCount++; notifyCount >= framesPerSdNotify {
			daemon.SdNotify(false, "WATCHDOG=1")
			notifyCount = 0
		}

		score, scored := scorer.Next(f)
		controller.Process(f, score, scored)
	}
}

func newScorer(conf motion.MotionConfig) motion.Scorer {
	if conf.Engine == motion.EngineOpenCV {
		return opencv.NewScorer(conf)
	}
	return motion.NewDiffScorer(conf)
}

func newSinkFactory(conf *Config, dryRun bool, listener throttle.ThrottledEventListener) (recorder.SinkFactory, error) {
	var sinks recorder.SinkFactory
	if dryRun {
		log.Print("dry run, recordings won't be written")
		sinks = recorder.NoWriteFactory{}
	} else {
		var loc *location.LocationConfig
		if !conf.Location.IsLocationEmpty() {
			loc = &conf.Location
		}
		log.Println("deleting temp files")
		if err := output.DeleteTempFiles(conf.OutputDir); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		files, err := output.NewFileSinkFactory(output.Config{
			Dir:          conf.OutputDir,
			Extension:    conf.Recorder.Extension,
			MinDiskSpace: conf.MinDiskSpace,
			DeviceName:   conf.DeviceName,
			Location:     loc,
		}, opencv.OpenWriter)
		if err != nil {
			return nil, err
		}
		sinks = files
	}

	if conf.Throttler.Activate {
		minSecs := conf.Recorder.PreEventSecs + conf.Recorder.PostEventSecs
		sinks = throttle.NewThrottledSinkFactory(sinks, &conf.Throttler, minSecs, conf.Recorder.FrameRate, listener)
	}
	return sinks, nil
}

// newConfiguredReporter returns nil when no event outputs are enabled.
func newConfiguredReporter(conf *Config) *eventReporter {
	var senders []eventSender
	if conf.Events.DBus {
		s, err := newDBusSender()
		if err != nil {
			log.Printf("d-bus events disabled: %v", err)
		} else {
			senders = append(senders, s)
		}
	}
	if conf.Events.MQTTBroker != "" {
		senders = append(senders, newMQTTSender(conf.Events))
	}
	if len(senders) == 0 {
		return nil
	}
	return newEventReporter(conf.DeviceName, senders...)
}

func runPlayback(conf *Config, path string) error {
	open := func(filename string) (frame.Source, error) {
		src, err := opencv.Open(frame.ConnectionDescriptor{
			URL:    filename,
			Width:  conf.Camera.Width,
			Height: conf.Camera.Height,
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	tester := newPlaybackTester(conf, open, func() motion.Scorer { return newScorer(conf.Motion) })

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		results, err := tester.Detect(path)
		if err != nil {
			return err
		}
		log.Print(results)
		return nil
	}

	results, err := tester.TestAll(path)
	if err != nil {
		return err
	}
	for name, result := range results {
		log.Printf("%-30s %s", name, result)
	}
	return nil
}

func logConfig(conf *Config) {
	log.Printf("device name: %s", conf.DeviceName)
	log.Printf("camera: %s", conf.Camera.Redacted())
	log.Printf("output dir: %s", conf.OutputDir)
	log.Printf("minimum disk space: %d", conf.MinDiskSpace)
	log.Printf("frame rate: %d", conf.Recorder.FrameRate)
	log.Printf("pre-event seconds: %d, post-event seconds: %d", conf.Recorder.PreEventSecs, conf.Recorder.PostEventSecs)
	log.Printf("codec: %s (%s)", conf.Recorder.Codec, conf.Recorder.Extension)
	log.Printf("stream: %+v", conf.Stream)
	log.Printf("motion: %+v", conf.Motion)
	log.Printf("throttler: %+v", conf.Throttler)
	if conf.Recorder.WindowStart != "" {
		log.Printf("recording window: %s to %s", conf.Recorder.WindowStart, conf.Recorder.WindowEnd)
	}
	if conf.Events.MQTTBroker != "" {
		log.Printf("mqtt events: %s %s", conf.Events.MQTTBroker, conf.Events.MQTTTopic)
	}
}
