// Command feedclient tails the admin event feed.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

type event struct {
	Type       string         `json:"type"`
	TelegramID int64          `json:"telegram_id"`
	Text       string         `json:"text"`
	FileRef    string         `json:"file_ref,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func main() {
	url := flag.String("url", "ws://localhost:8888/api/v1/admin/feed", "feed websocket url")
	initData := flag.String("init-data", os.Getenv("APP_FEED_INIT_DATA"), "telegram init data of an admin account")
	flag.Parse()

	header := http.Header{}
	header.Add("Authorization", "Telegram "+*initData)

	conn, _, err := websocket.DefaultDialer.Dial(*url, header)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	events := make(chan event)

	go func() {
		defer close(events)
		for {
			_, p, err := conn.ReadMessage()
			if err != nil {
				log.Println("read error:", err)
				return
			}

			var e event
			if err := json.Unmarshal(p, &e); err != nil {
				log.Println("decode error:", err)
				continue
			}
			events <- e
		}
	}()

	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			log.Printf("[%s] %s user=%d\n%s\n", e.CreatedAt.Format(time.RFC3339), e.Type, e.TelegramID, e.Text)

		case <-interrupt:
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
