// A terminal chat client. Log in (or register with -register), then:
//
//	/invite alice,bob   start an encrypted chat with the named users
//	/scheme RSA|DSA     pick the signature scheme for outgoing messages
//	/users              show who is online
//	/history            replay the current chat's stored messages
//	/leave              leave the current chat
//	/quit               exit
//
// Anything else is sent as a message to the current chat.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"cryptochat/internal/client"
	"cryptochat/internal/crypto"
)

func main() {
	relayURL := flag.String("relay", envOr("CHAT_RELAY", "http://localhost:8080"), "relay base URL")
	username := flag.String("user", "", "username")
	password := flag.String("pass", "", "password")
	register := flag.Bool("register", false, "create the account before logging in")
	flag.Parse()

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelWarn,
		TimeFormat: time.TimeOnly,
	})))

	if *username == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: client -user NAME -pass PASSWORD [-register] [-relay URL]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir := client.NewDirectory(*relayURL)
	if *register {
		if err := dir.Register(*username, *password); err != nil {
			fmt.Fprintln(os.Stderr, "register:", err)
			os.Exit(1)
		}
		fmt.Println("registered", *username)
	}

	ident, err := dir.Login(*username, *password)
	if err != nil {
		fmt.Fprintln(os.Stderr, "login:", err)
		os.Exit(1)
	}

	session := client.NewSession(ident, dir, 0)
	wsURL := strings.Replace(*relayURL, "http", "ws", 1) + "/ws"
	if err := session.Connect(ctx, wsURL); err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		os.Exit(1)
	}
	defer session.Close()
	fmt.Printf("connected as %s\n", session.Username())

	var currentChat string
	go func() {
		for {
			select {
			case chatID, ok := <-session.Joins():
				if !ok {
					return
				}
				currentChat = chatID
				fmt.Println("joined chat", chatID)
			case msg, ok := <-session.Inbox():
				if !ok {
					return
				}
				if currentChat == "" {
					currentChat = msg.ChatID
				}
				tag := ""
				if !msg.Verified {
					tag = " [UNVERIFIED]"
				}
				fmt.Printf("[%s] %s%s: %s\n", msg.Timestamp.Local().Format(time.Kitchen), msg.Sender, tag, msg.Text)
			case err, ok := <-session.Errors():
				if !ok {
					return
				}
				fmt.Println("!", err)
			}
		}
	}()

	scheme := crypto.SchemeRSA
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit":
			return
		case line == "/users":
			fmt.Println("online:", strings.Join(session.Presence().Snapshot(), ", "))
		case strings.HasPrefix(line, "/scheme "):
			want := crypto.Scheme(strings.TrimSpace(strings.TrimPrefix(line, "/scheme ")))
			if !want.Valid() {
				fmt.Println("unknown scheme; use RSA or DSA")
				continue
			}
			scheme = want
			fmt.Println("signature scheme:", scheme)
		case strings.HasPrefix(line, "/invite "):
			invitees := strings.Split(strings.TrimSpace(strings.TrimPrefix(line, "/invite ")), ",")
			for i := range invitees {
				invitees[i] = strings.TrimSpace(invitees[i])
			}
			if err := session.InitiateChat(invitees); err != nil {
				fmt.Println("!", err)
			}
		case line == "/history":
			if currentChat == "" {
				fmt.Println("no active chat")
				continue
			}
			msgs, err := session.History(currentChat)
			if err != nil {
				fmt.Println("!", err)
				continue
			}
			for _, msg := range msgs {
				tag := ""
				if !msg.Verified {
					tag = " [UNVERIFIED]"
				}
				fmt.Printf("[%s] %s%s: %s\n", msg.Timestamp.Local().Format(time.Kitchen), msg.Sender, tag, msg.Text)
			}
		case line == "/leave":
			if currentChat == "" {
				fmt.Println("no active chat")
				continue
			}
			if err := session.Leave(currentChat); err != nil {
				fmt.Println("!", err)
			} else {
				fmt.Println("left", currentChat)
				currentChat = ""
			}
		default:
			if currentChat == "" {
				fmt.Println("no active chat; /invite someone first")
				continue
			}
			if err := session.Send(currentChat, line, scheme); err != nil {
				fmt.Println("!", err)
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
