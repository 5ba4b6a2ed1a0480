package main

import (
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/p2pcore/keys"
	"github.com/gosuda/p2pcore/peerstore"
	"github.com/gosuda/p2pcore/session"
)

var rootCmd = &cobra.Command{
	Use:   "p2pcore-dial",
	Short: "Dial a p2pcore-listen peer, run secio, and send one line of traffic",
	RunE:  runDial,
}

var (
	dialAddr string
	message  string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&dialAddr, "addr", "127.0.0.1:4001", "TCP address to dial")
	flags.StringVar(&message, "message", "hello from p2pcore-dial", "application message to send after the handshake")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute root command")
	}
}

func runDial(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cred, err := keys.GenerateRSACredential(2048)
	if err != nil {
		return err
	}
	log.Info().Str("peer_id", cred.PeerID().String()).Msg("generated dialer identity")

	conn, err := net.Dial("tcp", dialAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	s := session.New(conn, cred, peerstore.New())
	if err := s.Dial(ctx); err != nil {
		return err
	}
	log.Info().Str("peer_id", s.RemotePeerID.String()).Msg("secio handshake established")

	if _, err := s.Write([]byte(message)); err != nil {
		return err
	}

	reply, err := s.Read()
	if err != nil {
		return err
	}
	log.Info().Str("reply", string(reply)).Msg("received reply")
	fmt.Println(string(reply))
	return nil
}
