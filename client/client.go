package main

import (
	"bufio"
	"context"
	"fmt"
	"github.com/mama165/sdk-go/logs"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL string `env:"REALTIME_URL,default=ws://localhost:8080/ws"`
	Token     string `env:"REALTIME_TOKEN"`
	UserID    int64  `env:"REALTIME_USER_ID,required=true"`
	GroupID   int64  `env:"REALTIME_GROUP_ID,default=1"`
	LogLevel  string `env:"LOG_LEVEL,default=INFO"`
}

type envelope struct {
	Type    string              `json:"type"`
	Payload jsoniter.RawMessage `json:"payload"`
}

type messagePayload struct {
	GroupID   int64  `json:"groupId"`
	MessageID int64  `json:"messageId"`
	UserID    int64  `json:"userId"`
	Content   string `json:"content"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run connects to the node, prints every event it pushes and turns each stdin
// line into a NEW_MESSAGE for the configured group.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	target, err := url.Parse(config.ServerURL)
	if err != nil {
		return exitConfig, fmt.Errorf("invalid REALTIME_URL: %w", err)
	}
	if config.Token != "" {
		query := target.Query()
		query.Set("token", config.Token)
		target.RawQuery = query.Encode()
	}

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Connect.
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to %s: %w", config.ServerURL, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()
	color.Green.Printf(">>> Connected to %s as user %d, group %d (Ctrl+C to quit)\n",
		config.ServerURL, config.UserID, config.GroupID)

	// 4. Reception loop.
	readErr := make(chan error, 1)
	go func() {
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			printEvent(frame)
		}
	}()

	// 5. Stdin loop.
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	var sent int64
	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping client...")
			return exitOK, nil
		case err := <-readErr:
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return exitOK, nil
			}
			return exitRuntime, fmt.Errorf("connection lost: %w", err)
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			if line == "" {
				continue
			}
			sent++
			frame, err := newMessageFrame(config, time.Now().UnixMilli()*1000+sent%1000, line)
			if err != nil {
				return exitRuntime, err
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return exitRuntime, fmt.Errorf("send failed: %w", err)
			}
		}
	}
}

func newMessageFrame(config Config, messageID int64, content string) ([]byte, error) {
	payload, err := jsonAPI.Marshal(messagePayload{
		GroupID:   config.GroupID,
		MessageID: messageID,
		UserID:    config.UserID,
		Content:   content,
	})
	if err != nil {
		return nil, err
	}
	return jsonAPI.Marshal(envelope{Type: "NEW_MESSAGE", Payload: payload})
}

func printEvent(frame []byte) {
	var env envelope
	if err := jsonAPI.Unmarshal(frame, &env); err != nil {
		color.Red.Printf("unreadable frame: %s\n", frame)
		return
	}
	stamp := time.Now().Format(time.TimeOnly)
	if env.Type == "NEW_MESSAGE" {
		var msg messagePayload
		if err := jsonAPI.Unmarshal(env.Payload, &msg); err == nil {
			color.Cyan.Printf("[%s] ", stamp)
			color.Bold.Printf("user %d", msg.UserID)
			fmt.Printf(": %s\n", msg.Content)
			return
		}
	}
	color.Cyan.Printf("[%s] ", stamp)
	color.Yellow.Printf("%s ", env.Type)
	fmt.Printf("%s\n", env.Payload)
}
