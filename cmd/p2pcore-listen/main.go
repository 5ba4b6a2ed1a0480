package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/p2pcore/keys"
	"github.com/gosuda/p2pcore/peerstore"
	"github.com/gosuda/p2pcore/session"
)

var rootCmd = &cobra.Command{
	Use:   "p2pcore-listen",
	Short: "Accept one secio-authenticated connection and echo one line of traffic",
	RunE:  runListen,
}

var listenAddr string

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&listenAddr, "addr", ":4001", "TCP address to listen on")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute root command")
	}
}

func runListen(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cred, err := keys.GenerateRSACredential(2048)
	if err != nil {
		return err
	}
	log.Info().Str("peer_id", cred.PeerID().String()).Msg("generated listener identity")

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	defer ln.Close()
	log.Info().Str("addr", ln.Addr().String()).Msg("listening")

	store := peerstore.New()

	conn, err := ln.Accept()
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("accepted connection")

	s := session.New(conn, cred, store)
	if err := s.Listen(ctx); err != nil {
		return err
	}
	log.Info().Str("peer_id", s.RemotePeerID.String()).Msg("secio handshake established")

	msg, err := s.Read()
	if err != nil {
		return err
	}
	log.Info().Str("message", string(msg)).Msg("received application message")

	if _, err := s.Write([]byte("ack: " + string(msg))); err != nil {
		return err
	}
	return nil
}
