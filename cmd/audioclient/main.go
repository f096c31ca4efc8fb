// Command audioclient streams a WAV file into a new session over HTTP and
// prints the final transcript.
package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// At 8kHz 16-bit mono = 16000 bytes/second, 100ms chunks = 1600 bytes
const (
	chunkSize       = 1600
	chunkIntervalMs = 100
)

type sessionView struct {
	SessionID   string `json:"sessionId"`
	State       string `json:"state"`
	Text        string `json:"text"`
	Annotations []struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"annotations"`
	HistoryLength int    `json:"historyLength"`
	LastError     string `json:"lastError"`
}

func main() {
	audioFile := flag.String("audio", "../../testdata/sample-8khz.wav", "Path to WAV file (8kHz 16-bit mono)")
	serverAddr := flag.String("server", "http://localhost:8080", "Service base URL")
	tenantID := flag.String("tenant", "tenant-demo", "Tenant ID")
	realtime := flag.Bool("realtime", true, "Pace chunks at real-time speed")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open audio file")
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatal().Err(err).Msg("Failed to read WAV header")
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Fatal().Msg("Not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	log.Info().
		Uint16("format", audioFormat).
		Uint16("channels", binary.LittleEndian.Uint16(header[22:24])).
		Uint32("sampleRate", sampleRate).
		Uint16("bitsPerSample", binary.LittleEndian.Uint16(header[34:36])).
		Msg("WAV file")

	if audioFormat != 1 {
		log.Fatal().Msg("Only PCM format supported")
	}
	if sampleRate != 8000 {
		log.Warn().Uint32("sampleRate", sampleRate).Msg("Expected 8000 Hz")
	}

	client := &http.Client{Timeout: 30 * time.Second}

	var created sessionView
	body, _ := json.Marshal(map[string]string{"tenantId": *tenantID})
	if err := call(client, http.MethodPost, *serverAddr+"/v1/sessions", "application/json", body, http.StatusCreated, &created); err != nil {
		log.Fatal().Err(err).Msg("Failed to create session")
	}
	base := *serverAddr + "/v1/sessions/" + created.SessionID
	log.Info().Str("sessionId", created.SessionID).Msg("Session created")

	chunk := make([]byte, chunkSize)
	var totalBytes int64
	var chunkNum int
	start := time.Now()

	for {
		n, err := f.Read(chunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read audio")
		}

		chunkNum++
		totalBytes += int64(n)
		if err := call(client, http.MethodPost, base+"/audio", "application/octet-stream", chunk[:n], http.StatusAccepted, nil); err != nil {
			log.Fatal().Err(err).Int("chunk", chunkNum).Msg("Failed to send audio")
		}
		if chunkNum%10 == 0 {
			log.Info().Int("chunk", chunkNum).Int64("bytes", totalBytes).Msg("Sent audio")
		}
		if *realtime {
			time.Sleep(chunkIntervalMs * time.Millisecond)
		}
	}

	log.Info().
		Int("chunks", chunkNum).
		Int64("bytes", totalBytes).
		Dur("elapsed", time.Since(start)).
		Msg("Finished streaming, closing session")

	var final sessionView
	if err := call(client, http.MethodDelete, base, "", nil, http.StatusOK, &final); err != nil {
		log.Fatal().Err(err).Msg("Failed to close session")
	}

	log.Info().
		Str("state", final.State).
		Int("batches", final.HistoryLength).
		Int("annotations", len(final.Annotations)).
		Str("lastError", final.LastError).
		Msg("Session closed")
	fmt.Println(final.Text)
}

func call(client *http.Client, method, url, contentType string, body []byte, want int, out any) error {
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
