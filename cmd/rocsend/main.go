// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

// Command rocsend is a minimal demo sender: it reads a WAV file, slices
// it into fixed-duration RTP source packets, and emits them over UDP at
// the file's sample rate. It exists to drive rocrecv in manual testing,
// not as a full-featured sender implementation.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/go-audio/wav"
	"github.com/rocwire/rocstream/internal/netio"
	"github.com/rocwire/rocstream/internal/wire"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	in := flag.String("in", "", "WAV file to stream")
	dest := flag.String("dest", "127.0.0.1:4010", "UDP address of the receiver")
	ssrc := flag.Uint("ssrc", 1, "SSRC to stamp outgoing packets with")
	payloadType := flag.Uint("pt", 0, "RTP payload type")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.StampMicro,
	}).With().Timestamp().Logger()

	if *in == "" {
		log.Fatal().Msg("rocsend: -in is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, *in, *dest, uint32(*ssrc), uint8(*payloadType)); err != nil {
		log.Fatal().Err(err).Msg("rocsend finished with error")
	}
}

func run(ctx context.Context, inPath, dest string, ssrc uint32, payloadType uint8) error {
	f, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return err
	}

	channels := buf.Format.NumChannels
	sampleRate := buf.Format.SampleRate
	const samplesPerFrame = 160 // 20ms @ 8kHz; frameDuration below is derived from it and the file's rate
	frameDuration := time.Duration(samplesPerFrame) * time.Second / time.Duration(sampleRate)

	destAddr, err := net.ResolveUDPAddr("udp", dest)
	if err != nil {
		return err
	}
	conn, err := netio.Listen("127.0.0.1:0", 1500)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Info().Str("in", inPath).Str("dest", dest).Int("rate", sampleRate).Int("channels", channels).Msg("rocsend streaming")

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	frameLen := samplesPerFrame * channels
	var seq uint16
	var ts uint32
	for start := 0; start < len(buf.Data); start += frameLen {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		end := start + frameLen
		if end > len(buf.Data) {
			end = len(buf.Data)
		}
		payload := make([]byte, 0, (end-start)*2)
		for _, s := range buf.Data[start:end] {
			payload = append(payload, byte(int16(s)>>8), byte(int16(s)))
		}

		datagram, err := wire.BuildSource(ssrc, seq, ts, seq == 0, payloadType, payload)
		if err != nil {
			return err
		}
		if err := conn.Send(datagram, destAddr); err != nil {
			return err
		}

		seq++
		ts += uint32(samplesPerFrame)
	}
	return nil
}
