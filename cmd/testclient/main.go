// Command testclient drives one session through a scripted edit sequence
// with undo and redo, printing the transcript after every step.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"transcribe-stream-service/internal/models"
	"transcribe-stream-service/internal/service/decoder"
)

type step struct {
	name    string
	path    string
	actions []models.Action
}

func main() {
	serverAddr := flag.String("server", "http://localhost:8080", "Service base URL")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	client := &http.Client{Timeout: 10 * time.Second}

	var created struct {
		SessionID string `json:"sessionId"`
	}
	if err := post(client, *serverAddr+"/v1/sessions", nil, http.StatusCreated, &created); err != nil {
		log.Fatal().Err(err).Msg("Failed to create session")
	}
	base := *serverAddr + "/v1/sessions/" + created.SessionID
	log.Info().Str("sessionId", created.SessionID).Msg("Session created")

	steps := []step{
		{name: "insert text", path: "/actions", actions: []models.Action{models.ReplaceText{
			ActionData: models.ActionData{ID: "r1", Index: 0},
			Parameters: models.ReplaceTextParameters{Start: 0, End: 0, Text: "Attendi"},
		}}},
		{name: "add tentative", path: "/actions", actions: []models.Action{models.AddAnnotation{
			ActionData: models.ActionData{ID: "a1", Index: 1},
			Parameters: models.AnnotationParameters{ID: "1A", StartCharIndex: 0, EndCharIndex: 0, Type: models.TranscriptionTentative{}},
		}}},
		{name: "remove tentative", path: "/actions", actions: []models.Action{models.RemoveAnnotation{
			ActionData: models.ActionData{ID: "d1", Index: 2},
			Parameters: models.RemoveParameters{ID: "1A"},
		}}},
		{name: "undo", path: "/undo"},
		{name: "undo", path: "/undo"},
		{name: "undo", path: "/undo"},
		{name: "redo all", path: "/redo?count=3"},
	}

	for _, s := range steps {
		var body []byte
		if s.actions != nil {
			raw, err := decoder.Encode(s.actions)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to encode actions")
			}
			body = []byte(raw)
		}

		var view struct {
			Text        string            `json:"text"`
			Annotations []json.RawMessage `json:"annotations"`
			History     int               `json:"historyLength"`
			Undone      int               `json:"undoneLength"`
		}
		if err := post(client, base+s.path, body, http.StatusOK, &view); err != nil {
			log.Fatal().Err(err).Str("step", s.name).Msg("Step failed")
		}
		log.Info().
			Str("step", s.name).
			Str("text", view.Text).
			Int("annotations", len(view.Annotations)).
			Int("history", view.History).
			Int("undone", view.Undone).
			Msg("Transcript")
	}

	req, _ := http.NewRequest(http.MethodDelete, base, nil)
	resp, err := client.Do(req)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to close session")
	}
	resp.Body.Close()
	log.Info().Int("status", resp.StatusCode).Msg("Session closed")
}

func post(client *http.Client, url string, body []byte, want int, out any) error {
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("POST %s: status %d: %s", url, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
