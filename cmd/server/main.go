package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/kamivour/chatserver/internal/auth"
	"github.com/kamivour/chatserver/internal/chatlog"
	"github.com/kamivour/chatserver/internal/config"
	"github.com/kamivour/chatserver/internal/hub"
	"github.com/kamivour/chatserver/internal/server"
	"github.com/kamivour/chatserver/internal/store"
)

const defaultPort = 9000

func resolvePort() int {
	if len(os.Args) < 2 {
		return defaultPort
	}
	p, err := strconv.Atoi(os.Args[1])
	if err != nil || p <= 0 || p > 65535 {
		return defaultPort
	}
	return p
}

func main() {
	cfg := config.Load()

	logger, err := chatlog.Setup(cfg.LogDir)
	if err != nil {
		fmt.Printf("Failed to setup logging: %v\n", err)
		return
	}
	defer logger.Close()

	st, err := store.New(cfg.DBPath, auth.ReferenceHasher{})
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	h := hub.New(st)
	srv := server.New(h, st, cfg.MaxClients, cfg.RateLimit)

	port := resolvePort()
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		log.Fatalf("failed to listen on port %d: %v", port, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		if err := srv.Run(ctx, ln); err != nil {
			log.Printf("accept loop stopped: %v", err)
		}
	}()

	log.Printf("Server started on port %d", port)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	shutdown := func() {
		fmt.Println("\nShutting down server...")
		cancel()
		<-acceptDone
		srv.Wait()
		logger.Rotate(time.Now())
	}

	go func() {
		<-sig
		shutdown()
		os.Exit(0)
	}()

	fmt.Println("Server console ready. Type 'help' for commands.")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			fmt.Println("Available commands: kick <user>, ban <user>, unban <user>, broadcast <msg>, msg <user> <text>, clients, stop")
		case "stop":
			shutdown()
			return
		case "kick":
			if len(args) != 1 {
				fmt.Println("Usage: kick <user>")
				continue
			}
			fmt.Println(srv.KickByName(args[0]))
		case "ban":
			if len(args) != 1 {
				fmt.Println("Usage: ban <user>")
				continue
			}
			fmt.Println(srv.BanByName(args[0]))
		case "unban":
			if len(args) != 1 {
				fmt.Println("Usage: unban <user>")
				continue
			}
			fmt.Println(srv.UnbanByName(args[0]))
		case "broadcast":
			if len(args) == 0 {
				fmt.Println("Usage: broadcast <msg>")
				continue
			}
			srv.BroadcastServerMessage(strings.Join(args, " "))
			fmt.Println("Broadcast sent.")
		case "msg":
			if len(args) < 2 {
				fmt.Println("Usage: msg <user> <text>")
				continue
			}
			if srv.SendServerMessageToUser(args[0], strings.Join(args[1:], " ")) {
				fmt.Println("Message sent.")
			} else {
				fmt.Printf("%s is not online\n", args[0])
			}
		case "clients":
			for _, snap := range srv.ConnectedClients() {
				fmt.Printf("%s  authenticated=%v  user=%s  role=%d\n", snap.PeerAddress, snap.Authenticated, snap.Username, snap.Role)
			}
		default:
			fmt.Println("Unknown command. Type 'help' for commands.")
		}
	}
}
