// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

// Command rocrecv is a minimal demo receiver: it listens for RTP source
// packets on a UDP socket, runs them through the full receiver
// pipeline, and writes the mixed PCM output to a WAV file. Its sessions
// are configured with FEC off, so repair packets are accepted but
// recover nothing. It exists to exercise internal/receiver end to end.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/rocwire/rocstream/internal/depacketize"
	"github.com/rocwire/rocstream/internal/fec"
	"github.com/rocwire/rocstream/internal/latency"
	"github.com/rocwire/rocstream/internal/netio"
	"github.com/rocwire/rocstream/internal/receiver"
	"github.com/rocwire/rocstream/internal/resample"
	"github.com/rocwire/rocstream/internal/session"
	"github.com/rocwire/rocstream/internal/sink"
	"github.com/rocwire/rocstream/internal/wire"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	addr := flag.String("listen", ":4010", "UDP address to receive RTP/FEC packets on")
	out := flag.String("out", "rocrecv-out.wav", "WAV file to write mixed PCM to")
	sampleRate := flag.Int("rate", 8000, "PCM sample rate")
	channels := flag.Int("channels", 1, "PCM channel count")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.StampMicro,
	}).With().Timestamp().Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, *addr, *out, *sampleRate, *channels); err != nil {
		log.Fatal().Err(err).Msg("rocrecv finished with error")
	}
}

func run(ctx context.Context, addr, outPath string, sampleRate, channels int) error {
	const samplesPerFrame = 160 // 20ms @ 8kHz

	factory := func(ssrc uint32) session.Config {
		return session.Config{
			SSRC:                 ssrc,
			FEC:                  fec.Config{Scheme: wire.SchemeNone},
			Format:               depacketize.LinearPCM16(channels, sampleRate),
			Channels:             channels,
			SamplesPerFrame:      samplesPerFrame,
			FrameDuration:        20 * time.Millisecond,
			JitterCapacity:       64,
			Latency:              latency.Config{Target: 100 * time.Millisecond, Min: 20 * time.Millisecond, Max: 400 * time.Millisecond, Profile: latency.Responsive},
			ResamplerQuality:     resample.QualityMedium,
			WatchdogNoPackets:    2 * time.Second,
			WatchdogBrokenFrames: 2 * time.Second,
			WatchdogBrokenRatio:  0.5,
			QueueCapacity:        256,
		}
	}

	rcv, err := receiver.New(64, factory,
		receiver.WithLogger(log.Logger),
	)
	if err != nil {
		return err
	}

	conn, err := netio.Listen(addr, 1500)
	if err != nil {
		return err
	}
	defer conn.Close()

	f, err := os.OpenFile(outPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	wavSink := sink.NewWavFile(f, sampleRate, channels)
	defer wavSink.Close()

	clock := sink.NewDevice(20 * time.Millisecond)
	defer clock.Close()
	pacedSink := sink.NewPaced(clock, wavSink)

	log.Info().Str("addr", addr).Str("out", outPath).Msg("rocrecv listening")

	go func() {
		<-ctx.Done()
		conn.Close() // unblock RunNetwork's Recv
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- rcv.RunNetwork(ctx, conn) }()

	err = rcv.RunPipeline(ctx, pacedSink, conn)
	if err != nil && ctx.Err() == nil {
		return err
	}
	<-errCh
	return nil
}
